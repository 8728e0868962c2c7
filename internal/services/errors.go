package services

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat   = errors.New("unsupported document format")
	ErrSizeExceeded        = errors.New("document exceeds maximum size")
	ErrNoDocuments         = errors.New("no documents submitted")
	ErrEmptyJobDescription = errors.New("job description is empty")
)

// ExtractionError reports a document that could not be read.
type ExtractionError struct {
	Format string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s text: %v", e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ProviderError is a transport-level failure talking to an LLM or embedding API.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s API error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ResponseParseError means the model answered but not in the expected format.
type ResponseParseError struct {
	Mode ResponseMode
	Raw  string
	Err  error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("failed to parse %s response: %v", e.Mode, e.Err)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

// IsRequestError reports whether err is a request-level validation failure.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrNoDocuments) || errors.Is(err, ErrEmptyJobDescription)
}
