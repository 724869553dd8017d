package gitsource

import "fmt"

// ValidationError reports a malformed source URL or ref. It is detected
// before any retrieval runs and maps to a different exit code than a
// retrieval failure.
type ValidationError struct {
	URL    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bad source URL %q: %s", e.URL, e.Reason)
}

// CloneError reports a failed retrieval of an already-validated source.
type CloneError struct {
	URL string
	Err error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("clone %s failed: %v", e.URL, e.Err)
}

func (e *CloneError) Unwrap() error { return e.Err }
