package reconcile

import (
	"errors"
	"fmt"
)

var (
	ErrNoMatchingItem    = errors.New("no matching library item")
	ErrNoPDFAttachment   = errors.New("item has no pdf attachment")
	ErrAttachmentMissing = errors.New("attachment file not found in package")
	ErrUploadExhausted   = errors.New("upload failed after all attempts")
	ErrChecksumMismatch  = errors.New("attachment checksum mismatch")
)

// stepError tags an error with the pipeline step that produced it.
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string {
	return fmt.Sprintf("%s: %v", e.step, e.err)
}

func (e *stepError) Unwrap() error {
	return e.err
}

func atStep(step string, err error) error {
	if err == nil {
		return nil
	}
	return &stepError{step: step, err: err}
}

// stepOf returns the step recorded on err, or "" if none.
func stepOf(err error) string {
	var se *stepError
	if errors.As(err, &se) {
		return se.step
	}
	return ""
}
