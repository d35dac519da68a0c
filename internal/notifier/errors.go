package notifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/kursadbilgin/quotation-engine/internal/domain"
)

// NotifyError classifies delivery failures as transient/permanent.
type NotifyError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *NotifyError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "notify error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *NotifyError) Unwrap() error {
	if e == nil {
		return domain.ErrExternal
	}
	if e.Cause != nil {
		return e.Cause
	}
	return domain.ErrExternal
}

// Is lets callers match the whole class with errors.Is(err, domain.ErrExternal).
func (e *NotifyError) Is(target error) bool {
	return target == domain.ErrExternal
}

// IsTransient reports whether a delivery failure should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var notifyErr *NotifyError
	if errors.As(err, &notifyErr) {
		return notifyErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
