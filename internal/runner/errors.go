package runner

import (
	"errors"
	"fmt"
)

// ErrNonZeroExit matches any *ExitError via errors.Is.
var ErrNonZeroExit = errors.New("non-zero exit")

// ErrNoExitStatus is returned when the child terminated without an exit code,
// e.g. it was killed by a signal.
var ErrNoExitStatus = errors.New("process exited without a status code")

// ExitError reports a child that exited with a non-zero code.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", e.Command, e.Code)
}

// Is makes errors.Is(err, ErrNonZeroExit) true for every ExitError.
func (e *ExitError) Is(target error) bool {
	return target == ErrNonZeroExit
}
