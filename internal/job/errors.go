package job

import "errors"

// ErrPrecondition matches every PreconditionError via errors.Is.
var ErrPrecondition = errors.New("start precondition not met")

// PreconditionError rejects a start request synchronously. It never produces a log entry.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "cannot start: " + e.Reason
}

// Is reports whether target is ErrPrecondition.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

func precondition(reason string) error {
	return &PreconditionError{Reason: reason}
}
