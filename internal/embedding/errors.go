package embedding

import "fmt"

// EmbeddingError reports a backend failure for a single input.
type EmbeddingError struct {
	Input string
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embed %q: %v", e.Input, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// BackendInitError reports that a backend could not be created. No item can be processed after it.
type BackendInitError struct {
	Model string
	Err   error
}

func (e *BackendInitError) Error() string {
	return fmt.Sprintf("initialize embedding backend %s: %v", e.Model, e.Err)
}

func (e *BackendInitError) Unwrap() error { return e.Err }
