package embedder

import "fmt"

// EmbeddingError reports a failure in the embedding stage. Backend
// unavailability and timeouts are transient and may be retried; empty input
// and oversize segments are permanent.
type EmbeddingError struct {
	// Op is the operation that failed (validate, embed).
	Op string

	// Transient indicates the failure may succeed on retry.
	Transient bool

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *EmbeddingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("embedder: %s failed", e.Op)
	}
	return fmt.Sprintf("embedder: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *EmbeddingError) Unwrap() error { return e.Err }

// IsTransient reports whether the failure is worth retrying.
func (e *EmbeddingError) IsTransient() bool { return e.Transient }

// embedErr constructs an *EmbeddingError wrapping err.
func embedErr(op string, transient bool, err error) *EmbeddingError {
	return &EmbeddingError{Op: op, Transient: transient, Err: err}
}
