// Package server provides the HTTP surface for the pipeline worker: the job
// lifecycle API plus the health and metrics endpoints. DTOs are kept separate
// from the domain types.
package server

import "encoding/json"

// CreateJobRequest is the HTTP request body for submitting a job.
type CreateJobRequest struct {
	// Type selects the processing pipeline.
	Type string `json:"type" validate:"required"`
	// InputRef is the opaque reference to the source media.
	InputRef string `json:"input_ref" validate:"required"`
	// Params is the type-specific parameter payload.
	Params json.RawMessage `json:"params,omitempty"`
}

// CreateJobResponse is the HTTP response after submitting a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for job status queries.
type JobResponse struct {
	ID string `json:"id"`
	// Type is the job's pipeline type; omitted when the status came from the
	// progress ledger fast path.
	Type   string `json:"type,omitempty"`
	Status string `json:"status"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// StageLabel describes the step currently running or last recorded.
	StageLabel string `json:"stage_label,omitempty"`
	// ETASeconds is a rough estimate of remaining processing time.
	ETASeconds *int `json:"eta_seconds,omitempty"`
	// OutputRef is the result reference; set once COMPLETED.
	OutputRef string `json:"output_ref,omitempty"`
	// Error contains the failure detail if the job failed.
	Error string `json:"error,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
