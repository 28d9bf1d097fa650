package schedule

import "errors"

// Failure kinds. Compare with errors.Is; the *Failure value carries the
// user-facing message.
var (
	ErrWindowUnset     = errors.New("window unset")
	ErrInvalidWindow   = errors.New("invalid window")
	ErrNoValidTasks    = errors.New("no valid tasks")
	ErrDeadlineUnmet   = errors.New("deadline unmet")
	ErrWindowExhausted = errors.New("window exhausted")
)

// Failure is the single reason a Plan call did not produce a schedule.
type Failure struct {
	Kind error
	// Task names the task that triggered the failure (DeadlineUnmet only).
	Task string
}

func (f *Failure) Error() string {
	switch f.Kind {
	case ErrWindowUnset:
		return "Please set the available time window."
	case ErrInvalidWindow:
		return "End time must be after start time."
	case ErrNoValidTasks:
		return "Please add at least one valid task."
	case ErrDeadlineUnmet:
		return "Task \"" + f.Task + "\" cannot be scheduled before its deadline."
	case ErrWindowExhausted:
		return "Not enough time in the window for all tasks."
	default:
		if f.Kind != nil {
			return f.Kind.Error()
		}
		return "schedule failed"
	}
}

func (f *Failure) Unwrap() error { return f.Kind }

func fail(kind error) error { return &Failure{Kind: kind} }
