package types

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorKind classifies a slot failure for event payloads.
type ErrorKind string

const (
	ErrKindNetwork   ErrorKind = "network"
	ErrKindTimeout   ErrorKind = "timeout"
	ErrKindRateLimit ErrorKind = "rate_limit"
	ErrKindServer    ErrorKind = "server_error"
	ErrKindTTS       ErrorKind = "tts_error"
	ErrKindUnknown   ErrorKind = "unknown"
)

// Retryable reports whether a failure of this kind is worth retrying at the
// client layer.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrKindNetwork, ErrKindTimeout, ErrKindRateLimit:
		return true
	}
	return false
}

// Classify maps an arbitrary error to an [ErrorKind].
//
// Canonical context and net errors are matched first; otherwise the error
// text is inspected: "timeout" → timeout, "ratelimit"/"rate_limit" →
// rate_limit, "connection"/"network"/"dns"/"socket"/"refused" → network.
// Everything else is a server error.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrKindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrKindTimeout
		}
		return ErrKindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return ErrKindTimeout
	case strings.Contains(msg, "ratelimit"), strings.Contains(msg, "rate_limit"), strings.Contains(msg, "rate limit"):
		return ErrKindRateLimit
	case strings.Contains(msg, "connection"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "dns"),
		strings.Contains(msg, "socket"),
		strings.Contains(msg, "refused"):
		return ErrKindNetwork
	}
	return ErrKindServer
}
