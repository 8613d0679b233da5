package api

import (
	"context"
	"net/http"
)

// CheckKey validates the API key.
func (c *Client) CheckKey(ctx context.Context, call *CallOptions) error {
	var result struct {
		OK bool `json:"ok"`
	}
	if err := c.Do(ctx, http.MethodGet, "/v1/check-key", nil, &result, call); err != nil {
		return err
	}
	if !result.OK {
		return ErrInvalidAPIKey
	}
	return nil
}

// CreateEvaluation runs an evaluation against the configured model.
func (c *Client) CreateEvaluation(ctx context.Context, req *EvaluationRequest, call *CallOptions) (*Evaluation, error) {
	var result Evaluation
	if err := c.Do(ctx, http.MethodPost, "/v1/evaluation", req, &result, call); err != nil {
		return nil, err
	}
	return &result, nil
}
