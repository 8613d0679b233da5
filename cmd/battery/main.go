// Package main provides the battery binary, a small companion CLI for the
// Battery evaluation API: run one-off evaluations and validate credentials
// from the command line.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	battery "github.com/battery-ai/battery-go"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		apiKey     string
		baseURL    string
		timeout    time.Duration
		maxRetries int
	)

	cmd := &cobra.Command{
		Use:           "battery",
		Short:         "Battery evaluation API client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env if present so local runs pick up BATTERY_API_KEY.
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (defaults to $"+battery.EnvAPIKey+")")
	cmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "API base URL (defaults to $"+battery.EnvBaseURL+")")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "total timeout per call, retries included")
	cmd.PersistentFlags().IntVar(&maxRetries, "max-retries", -1, "retries after the initial attempt")

	newClient := func() (*battery.Client, error) {
		var opts []battery.Option
		if baseURL == "" {
			baseURL = os.Getenv(battery.EnvBaseURL)
		}
		if baseURL != "" {
			opts = append(opts, battery.WithBaseURL(baseURL))
		}
		if timeout > 0 {
			opts = append(opts, battery.WithTimeout(timeout))
		}
		if maxRetries >= 0 {
			opts = append(opts, battery.WithMaxRetries(maxRetries))
		}
		return battery.New(apiKey, opts...)
	}

	cmd.AddCommand(evalCmd(newClient))
	cmd.AddCommand(checkKeyCmd(newClient))

	return cmd
}

func evalCmd(newClient func() (*battery.Client, error)) *cobra.Command {
	var (
		input     string
		response  string
		metrics   []string
		evalCtx   string
		reference string
		model     string
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run an evaluation and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			eval, err := client.Evaluation.Create(cmd.Context(), &battery.EvaluationRequest{
				Input:     input,
				Response:  response,
				Metrics:   metrics,
				Context:   evalCtx,
				Reference: reference,
				Model:     model,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(eval)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "prompt the evaluated model received")
	cmd.Flags().StringVar(&response, "response", "", "evaluated model's output")
	cmd.Flags().StringSliceVar(&metrics, "metric", nil, "metric to evaluate (repeatable)")
	cmd.Flags().StringVar(&evalCtx, "context", "", "grounding material")
	cmd.Flags().StringVar(&reference, "reference", "", "gold answer")
	cmd.Flags().StringVar(&model, "model", "", "evaluator model version")

	return cmd
}

func checkKeyCmd(newClient func() (*battery.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "check-key",
		Short: "Validate the configured API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.CheckKey(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("API key is valid")
			return nil
		},
	}
}
