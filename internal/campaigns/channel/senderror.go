package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// SendError classifies a failed send attempt.
type SendError struct {
	Code      string
	Message   string
	Retryable bool
	// Fatal marks failures that no recipient can recover from (bad
	// credentials, broken provider config); the dispatcher fails the whole
	// campaign instead of retrying per recipient.
	Fatal bool
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewSendError builds a classified send failure.
func NewSendError(code, message string, retryable bool) *SendError {
	return &SendError{Code: code, Message: message, Retryable: retryable}
}

// NewFatalSendError builds a campaign-level failure.
func NewFatalSendError(code, message string) *SendError {
	return &SendError{Code: code, Message: message, Fatal: true}
}

// Classify turns an arbitrary send error into a SendError. Network timeouts
// are transient; anything unrecognized is treated as a permanent failure for
// that recipient.
func Classify(err error) *SendError {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewSendError("timeout", err.Error(), true)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewSendError("timeout", err.Error(), true)
	}

	return NewSendError("send_failed", err.Error(), false)
}

// classifyStatus maps a gateway HTTP status to a SendError.
func classifyStatus(status int, body string) *SendError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewFatalSendError("auth_failed", fmt.Sprintf("gateway returned %d: %s", status, body))
	case status == http.StatusTooManyRequests:
		return NewSendError("rate_limited", fmt.Sprintf("gateway returned %d", status), true)
	case status >= http.StatusInternalServerError:
		return NewSendError("gateway_error", fmt.Sprintf("gateway returned %d: %s", status, body), true)
	default:
		return NewSendError("rejected", fmt.Sprintf("gateway returned %d: %s", status, body), false)
	}
}
