// Package engine drives a research session: it owns the reasoning cycle,
// the agent state machine, streaming consumption and the tool lifecycle.
// This file contains error types and provider error classification.

package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNoMessages is returned when the session history is empty.
	ErrNoMessages = errors.New("engine: session has no messages")
	// ErrUnknownAgent is returned when engine state names an agent that was not defined.
	ErrUnknownAgent = errors.New("engine: unknown agent")
	// ErrUnknownEngine is returned by the registry for names it does not know.
	ErrUnknownEngine = errors.New("engine: unknown engine")
	// ErrToolInFlight is returned when a second tool is started while one is executing.
	ErrToolInFlight = errors.New("engine: a tool is already executing")
	// ErrUnknownTool marks a tool call naming a tool that is not registered.
	ErrUnknownTool = errors.New("engine: unknown tool")
	// ErrNotImplemented is returned by optional engine behavior that a variant does not provide.
	ErrNotImplemented = errors.New("engine: not implemented")
	// ErrApprovalRequired is returned by Reason when the last message still needs the user's approval.
	ErrApprovalRequired = errors.New("engine: last message must be approved before it is sent")
)

// ConfigurationError reports invalid engine parameters or agent definitions.
type ConfigurationError struct {
	Param  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "engine configuration"
	if e.Param != "" {
		msg += fmt.Sprintf(" (param %q)", e.Param)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// StreamError wraps a provider failure observed while consuming a response stream.
type StreamError struct {
	Agent string
	Err   error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream (agent=%s): %v", e.Agent, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// ToolExecutionError wraps a failure raised by a tool run.
type ToolExecutionError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (call %s): %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// RetryClass indicates whether an error should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"
	RetryClassMaybe        RetryClass = "maybe" // retried at most twice
	RetryClassNonRetryable RetryClass = "non_retryable"
)

// EngineError wraps provider errors with classification metadata.
type EngineError struct {
	Err         error
	Class       RetryClass
	HTTPStatus  int
	RetryAfter  string
	IsRateLimit bool
	IsAuth      bool
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("engine error: %s", e.Class)
}

func (e *EngineError) Unwrap() error { return e.Err }

type classRule struct {
	class   RetryClass
	needles []string
}

// Evaluated in order; the first matching rule wins.
var llmErrorRules = []classRule{
	{RetryClassRetryable, []string{"429", "rate limit", "too many requests", "overloaded"}},
	{RetryClassRetryable, []string{"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout"}},
	{RetryClassRetryable, []string{"timeout", "connection reset", "connection refused", "no such host", "temporary failure", "unexpected eof"}},
	{RetryClassMaybe, []string{"deadline exceeded"}},
	{RetryClassNonRetryable, []string{"401", "403", "unauthorized", "forbidden", "invalid api key", "authentication"}},
	{RetryClassNonRetryable, []string{"400", "bad request", "invalid request", "context length", "maximum context"}},
	{RetryClassNonRetryable, []string{"402", "quota", "billing", "content filter", "content_filter"}},
}

// ClassifyLLMError classifies an error from an LLM provider call.
func ClassifyLLMError(err error) RetryClass {
	if err == nil || errors.Is(err, errStreamCancelled) {
		return RetryClassNonRetryable
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Class
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range llmErrorRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return rule.class
			}
		}
	}
	return RetryClassNonRetryable
}

// WrapLLMError attaches HTTP metadata to a provider error.
func WrapLLMError(err error, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}
	class := ClassifyLLMError(err)
	if httpStatus == http.StatusTooManyRequests || httpStatus >= 500 {
		class = RetryClassRetryable
	}
	return &EngineError{
		Err:         err,
		Class:       class,
		HTTPStatus:  httpStatus,
		RetryAfter:  retryAfter,
		IsRateLimit: httpStatus == http.StatusTooManyRequests,
		IsAuth:      httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden,
	}
}

// ExtractRetryAfter reads a Retry-After hint from an EngineError.
// Returns 0 if absent or unparsable.
func ExtractRetryAfter(err error) time.Duration {
	var engineErr *EngineError
	if !errors.As(err, &engineErr) || engineErr.RetryAfter == "" {
		return 0
	}
	var seconds int
	if _, scanErr := fmt.Sscanf(engineErr.RetryAfter, "%d", &seconds); scanErr == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, parseErr := time.Parse(time.RFC1123, engineErr.RetryAfter); parseErr == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// RetryExhaustedError indicates that all retry attempts have been exhausted.
type RetryExhaustedError struct {
	Err       error
	Attempts  int
	IsGuarded bool // a "maybe" class error hit its reduced limit
}

func (e *RetryExhaustedError) Error() string {
	if e.IsGuarded {
		return fmt.Sprintf("guarded retries exhausted after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }
