// Package apierror provides standardized error response structures for the API
// and the typed domain errors the services return. All errors returned to
// clients go through this package so internal details (DB errors, stack traces)
// never leak.
package apierror

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Detail string `json:"detail"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// Validation wraps multiple field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "Error de validacion", Fields: fields}
}
