package runtime

// OutcomeStatus classifies how a decode session ended.
type OutcomeStatus string

const (
	// OutcomeCompleted means the input was read to the end. Per-frame
	// decode failures are counted, not fatal; they do not change this.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomeError means rows could not be persisted and the session
	// terminated early.
	OutcomeError OutcomeStatus = "error"
	// OutcomeCrash means an internal fault: a stream read error or
	// cancellation mid-session.
	OutcomeCrash OutcomeStatus = "crash"
	// OutcomeInvalidInput means the input log could not be opened.
	OutcomeInvalidInput OutcomeStatus = "invalid_input"
)

// Process exit codes. The exit code is authoritative for scripting;
// the report carries the same classification with more detail.
const (
	ExitCodeCompleted    = 0
	ExitCodeError        = 1
	ExitCodeCrash        = 2
	ExitCodeInvalidInput = 3
)

// Outcome is the terminal classification of a session.
type Outcome struct {
	Status  OutcomeStatus
	Message string
}

// ExitCode maps the outcome status to its process exit code.
// Unrecognized statuses map to the crash code.
func (o Outcome) ExitCode() int {
	switch o.Status {
	case OutcomeCompleted:
		return ExitCodeCompleted
	case OutcomeError:
		return ExitCodeError
	case OutcomeInvalidInput:
		return ExitCodeInvalidInput
	default:
		return ExitCodeCrash
	}
}
