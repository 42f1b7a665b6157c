package dto

import "github.com/campaign-hub/backend/internal/services"

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// DispatchResponse is a manual send outcome. Error carries the failure
// reason when the post was not delivered.
type DispatchResponse struct {
	*services.DispatchResult
	Error string `json:"error,omitempty"`
}

type WebhookResponse struct {
	Outcome services.WebhookOutcome `json:"outcome"`
}
