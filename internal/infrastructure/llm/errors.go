package llm

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAPIKey = errors.New("enrichment api key is not configured")
	ErrBatchTooLarge = fmt.Errorf("enrichment batch exceeds %d places", MaxBatchSize)
)

// APIError is returned when the API answers with a non-200 status.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("enrichment api returned status %d: %s", e.Status, e.Body)
}

// DecodingError wraps failures to parse the response envelope or the embedded JSON array.
type DecodingError struct {
	Cause error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decode enrichment response: %v", e.Cause)
}

func (e *DecodingError) Unwrap() error { return e.Cause }

// NetworkError wraps transport failures.
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("enrichment request failed: %v", e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// EncodingError wraps failures to build the request body.
type EncodingError struct {
	Cause error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode enrichment request: %v", e.Cause)
}

func (e *EncodingError) Unwrap() error { return e.Cause }
