// Package battery provides a Go client SDK for the Battery evaluation API,
// which scores a model's response against a set of metrics and returns a
// critique for each.
//
// Basic usage:
//
//	client, err := battery.New("your-api-key")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eval, err := client.Evaluation.Create(ctx, &battery.EvaluationRequest{
//	    Input:    "What is the capital of France?",
//	    Response: "Paris is the capital of France.",
//	    Metrics:  []string{"recall"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("score:", eval.Evaluations["recall"].Score)
//
// Transient failures (connection errors, timeouts, 408/409/429 and 5xx
// responses) are retried with exponential backoff; everything else surfaces
// immediately as a typed error. Per-call overrides never mutate the client:
//
//	eval, err = client.Evaluation.Create(ctx, req,
//	    battery.WithRequestMaxRetries(0),
//	    battery.WithRequestTimeout(10*time.Second),
//	)
//
// A Client is safe for concurrent use. Every method takes a
// context.Context, so callers that need the non-blocking form run the call
// on a goroutine and cancel it through the context; cancellation aborts the
// in-flight attempt and any pending backoff sleep.
package battery
