package speaker

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProperty = errors.New("unknown property")
	ErrReadOnly        = errors.New("property is read-only")
	ErrOutOfRange      = errors.New("value out of range")
	ErrInvalidValue    = errors.New("invalid value")
	ErrSpeakerNotFound = errors.New("speaker not found")
)

// ActionError reports a failed Device Gateway call. The mirrored value is left unchanged.
type ActionError struct {
	Op  string
	UID string
	Err error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s on speaker %s failed: %v", e.Op, e.UID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
