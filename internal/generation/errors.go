package generation

import (
	"errors"
	"fmt"
)

// ErrValidation marks caller-supplied parameters rejected before any backend
// call. Check with errors.Is.
var ErrValidation = errors.New("invalid generation request")

// MalformedOutputError reports that a parser could not extract a single
// structured item from generation output. Raw carries the full text so the
// caller can inspect or salvage it.
type MalformedOutputError struct {
	Operation string
	Raw       string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s: no structured items found in generation output (%d bytes)", e.Operation, len(e.Raw))
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
