package api

import "encoding/json"

// EvaluationRequest represents the POST /v1/evaluation request body.
type EvaluationRequest struct {
	Input     string   `json:"input"`
	Response  string   `json:"response"`
	Metrics   []string `json:"metrics"`
	Context   string   `json:"context,omitempty"`
	Reference string   `json:"reference,omitempty"`
	Model     string   `json:"model,omitempty"`
}

// MetricResult is one metric's evaluation within the response. The server
// may emit the critique as a string, a number, or a list, so it is kept
// raw here and normalized by the public package.
type MetricResult struct {
	Score    int             `json:"score"`
	Critique json.RawMessage `json:"critique"`
}

// Usage reports token accounting for an evaluation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	EvaluationTokens int `json:"evaluation_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Evaluation represents the POST /v1/evaluation response.
type Evaluation struct {
	ID          string                  `json:"id,omitempty"`
	Created     int64                   `json:"created,omitempty"`
	Model       string                  `json:"model"`
	Evaluations map[string]MetricResult `json:"evaluations"`
	Usage       Usage                   `json:"usage"`
}
