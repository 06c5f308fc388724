package upstream

import (
	"errors"
	"fmt"
)

// Reason tags a generation failure so callers can tell retryable from input problems.
type Reason string

const (
	ReasonTransport Reason = "transport"
	ReasonTruncated Reason = "truncated"
	ReasonRejected  Reason = "rejected"
	ReasonUnknown   Reason = "unknown"
	ReasonTimeout   Reason = "timeout"
)

var (
	// ErrTimeout is wrapped by a GenerationError whose Reason is ReasonTimeout.
	ErrTimeout = errors.New("generation timed out")
	// ErrBusy is returned while another generation for the same key is outstanding.
	ErrBusy = errors.New("generation already in progress")
)

type GenerationError struct {
	Reason Reason
	Status int
	Detail string
	Err    error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("generation failed (%s)", e.Reason)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	if e.Reason == ReasonTimeout && e.Err == nil {
		return ErrTimeout
	}
	return e.Err
}

// ReasonOf returns the reason tag of err, or "" when err is not a GenerationError.
func ReasonOf(err error) Reason {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Reason
	}
	return ""
}
