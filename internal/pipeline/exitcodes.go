package pipeline

import "fmt"

// Process exit statuses, one per failure class. Harvest failures share
// status 1 with URL validation errors; every other class is distinct.
const (
	ExitOK              = 0
	ExitBadSourceURL    = 1
	ExitHarvestFailed   = 1
	ExitCloneFailed     = 4
	ExitDriverNotFound  = 5
	ExitDriverFailed    = 6
	ExitBadConfig       = 7
	ExitWorkspaceFailed = 8
)

// ExitError couples a pipeline failure with the process exit status the
// orchestrator must terminate with.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

func exitErr(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}
