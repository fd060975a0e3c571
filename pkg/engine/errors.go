package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidSize          = errors.New("invalid block buffer size")
	ErrNotStarted           = errors.New("timer stopped before it was started")
	ErrInvalidConfiguration = errors.New("invalid phase configuration")
	ErrIOFailure            = errors.New("i/o failure")
	ErrShortRead            = errors.New("short read")
	ErrEngineUsed           = errors.New("engine already ran a phase")
)

// PhaseError is returned when I/O fails during a phase. Record holds
// whatever statistics were gathered before the failure.
type PhaseError struct {
	Op     string // "open", "seek", "read", "write", "close"
	Path   string
	Mark   int
	Err    error
	Record *RunRecord
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("mark %d: %s %s: %v", e.Mark, e.Op, e.Path, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Is reports every PhaseError as an ErrIOFailure.
func (e *PhaseError) Is(target error) bool {
	return target == ErrIOFailure
}

func invalidConfig(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfiguration, format, args...)
}
