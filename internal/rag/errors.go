package rag

import (
	"fmt"
	"sync"
)

// VectorStoreError reports a failure in a vector store backend. Transient
// failures (backend unavailable, connection reset) may be retried with
// backoff by the caller; permanent failures (write conflict, invalid input)
// must not be.
type VectorStoreError struct {
	// Op is the store operation that failed (insert, search, delete, update).
	Op string

	// Transient indicates the failure may succeed on retry.
	Transient bool

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *VectorStoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("vector store: %s failed", e.Op)
	}
	return fmt.Sprintf("vector store: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *VectorStoreError) Unwrap() error { return e.Err }

// IsTransient reports whether the failure is worth retrying.
func (e *VectorStoreError) IsTransient() bool { return e.Transient }

// storeErr constructs a *VectorStoreError wrapping err.
func storeErr(op string, transient bool, err error) *VectorStoreError {
	return &VectorStoreError{Op: op, Transient: transient, Err: err}
}

// inflight tracks document ids with an insert currently in progress. Stores
// use it to reject a second concurrent insert for the same document id
// rather than interleave chunk writes.
type inflight struct {
	// mu protects ids.
	mu sync.Mutex
	// ids is the set of document ids being inserted right now.
	ids map[string]struct{}
}

// begin marks id as in flight. It returns false when an insert for id is
// already running.
func (f *inflight) begin(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ids == nil {
		f.ids = make(map[string]struct{})
	}
	if _, busy := f.ids[id]; busy {
		return false
	}
	f.ids[id] = struct{}{}
	return true
}

// end clears the in-flight mark for id.
func (f *inflight) end(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ids, id)
}
