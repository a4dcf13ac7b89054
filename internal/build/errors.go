package build

import (
	"fmt"

	"github.com/waabox/gitpress/internal/domain"
)

// PhaseError reports which step of which pipeline failed.
type PhaseError struct {
	Pipeline string
	Phase    domain.Phase
	Err      error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("pipeline %s: %s: %v", e.Pipeline, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
