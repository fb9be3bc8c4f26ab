package summarize

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoContent signals that the selected records carried no usable
// text (all empty or whitespace-only).
var ErrNoContent = errors.New("no usable message text to summarize")

// Cause categorizes a remote summarizer failure. Purely informational:
// no class triggers a retry, every failure surfaces immediately.
type Cause string

const (
	CauseAuth            Cause = "AUTH"
	CauseRateLimit       Cause = "RATE_LIMIT"
	CauseTimeout         Cause = "TIMEOUT"
	CauseContextOverflow Cause = "CONTEXT_OVERFLOW"
	CauseEmptyResponse   Cause = "EMPTY_RESPONSE"
	CauseUnknown         Cause = "UNKNOWN"
)

// RemoteError wraps a failed summarizer call with its classified cause.
// An empty or null response counts as a failure like any remote error.
type RemoteError struct {
	Cause  Cause
	Detail string
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("summarization failed (%s): %v", e.Cause, e.Err)
	}
	return fmt.Sprintf("summarization failed (%s): %s", e.Cause, e.Detail)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func remoteError(err error) *RemoteError {
	return &RemoteError{Cause: classify(err), Detail: err.Error(), Err: err}
}

// classify inspects the error message for known provider patterns.
func classify(err error) Cause {
	if err == nil {
		return CauseUnknown
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "invalid api key"):
		return CauseAuth
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "too many requests"):
		return CauseRateLimit
	case strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"):
		return CauseTimeout
	case strings.Contains(msg, "context length"),
		strings.Contains(msg, "token limit"),
		strings.Contains(msg, "maximum context"),
		strings.Contains(msg, "context window"):
		return CauseContextOverflow
	}
	return CauseUnknown
}
