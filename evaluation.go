package battery

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/battery-ai/battery-go/internal/api"
)

// EvaluationService runs model evaluations.
type EvaluationService struct {
	client *Client
}

// EvaluationRequest describes one evaluation: the prompt given to a model,
// the model's response, and the metrics to score it on.
type EvaluationRequest struct {
	// Input is the prompt or question the evaluated model received.
	Input string

	// Response is the evaluated model's output.
	Response string

	// Metrics names the dimensions to evaluate, e.g. "recall" or
	// "precision". At least one is required.
	Metrics []string

	// Context optionally supplies grounding material the response should
	// be judged against.
	Context string

	// Reference optionally supplies a gold answer.
	Reference string

	// Model optionally selects the evaluator model version. When empty,
	// the server default is used.
	Model string
}

// MetricResult is the evaluation for a single metric.
type MetricResult struct {
	// Score is the model's rating on a 1-5 scale.
	Score int

	// Critique explains the score. The server may emit it as a string,
	// a number, or a list; it is normalized to its textual form.
	Critique string
}

// Usage reports billing and rate-limit accounting for an evaluation.
type Usage struct {
	// PromptTokens is the number of tokens passed via the input and
	// response fields, plus the context and reference fields if provided.
	PromptTokens int

	// EvaluationTokens is the number of tokens produced by the model
	// during the evaluation.
	EvaluationTokens int

	// TotalTokens is the total of prompt and evaluation tokens.
	TotalTokens int
}

// Evaluation is the result of one evaluation request.
type Evaluation struct {
	// ID uniquely identifies the evaluation. May be empty.
	ID string

	// Created is when the evaluation was created. Zero when the server
	// omits it.
	Created time.Time

	// Model is the model version that performed the evaluation.
	Model string

	// Evaluations maps each requested metric to its result.
	Evaluations map[string]MetricResult

	// Usage carries token accounting.
	Usage Usage
}

// Create runs an evaluation. The request is validated locally before any
// network attempt: Input, Response and at least one metric are required.
func (s *EvaluationService) Create(ctx context.Context, req *EvaluationRequest, opts ...RequestOption) (*Evaluation, error) {
	if err := validateEvaluationRequest(req); err != nil {
		return nil, err
	}

	apiReq := &api.EvaluationRequest{
		Input:     req.Input,
		Response:  req.Response,
		Metrics:   req.Metrics,
		Context:   req.Context,
		Reference: req.Reference,
		Model:     req.Model,
	}

	resp, err := s.client.api.CreateEvaluation(ctx, apiReq, callOptions(opts))
	if err != nil {
		return nil, wrapError(err)
	}

	return parseEvaluation(resp), nil
}

func validateEvaluationRequest(req *EvaluationRequest) error {
	var problems []string
	if req == nil {
		return &ValidationError{Errors: []string{"request is required"}}
	}
	if req.Input == "" {
		problems = append(problems, "input is required")
	}
	if req.Response == "" {
		problems = append(problems, "response is required")
	}
	if len(req.Metrics) == 0 {
		problems = append(problems, "at least one metric is required")
	}
	if len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	return nil
}

func parseEvaluation(resp *api.Evaluation) *Evaluation {
	eval := &Evaluation{
		ID:          resp.ID,
		Model:       resp.Model,
		Evaluations: make(map[string]MetricResult, len(resp.Evaluations)),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			EvaluationTokens: resp.Usage.EvaluationTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if resp.Created > 0 {
		eval.Created = time.Unix(resp.Created, 0).UTC()
	}
	for metric, result := range resp.Evaluations {
		eval.Evaluations[metric] = MetricResult{
			Score:    result.Score,
			Critique: critiqueText(result.Critique),
		}
	}
	return eval
}

// critiqueText normalizes the critique field. It is usually a JSON string,
// but the server may emit numbers or lists; those are kept in their compact
// JSON form.
func critiqueText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err == nil {
		return buf.String()
	}
	return string(raw)
}
