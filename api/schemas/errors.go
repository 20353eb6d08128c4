package schemas

import (
	"errors"
	"fmt"
	"strings"
)

// -- Error Taxonomy --

// ErrorKind classifies a step failure into the closed set a host workflow
// can branch on. Kinds are stable wire values, not display strings.
type ErrorKind string

const (
	// ErrLaunch means the browser process or context could not be created.
	// The session is unusable afterwards.
	ErrLaunch ErrorKind = "launch_error"
	// ErrSessionNotReady means the step arrived before open or after close.
	ErrSessionNotReady ErrorKind = "session_not_ready"
	// ErrInvalidState means the step is illegal in the session's current
	// state, such as opening a session that is already open.
	ErrInvalidState ErrorKind = "invalid_state"
	// ErrInvalidRequest means the request failed structural validation
	// before any browser work started.
	ErrInvalidRequest ErrorKind = "invalid_request"
	// ErrNavigation means the page load failed or was aborted.
	ErrNavigation ErrorKind = "navigation_error"
	// ErrNotFound means a cardinality-one locator matched nothing within
	// the wait budget.
	ErrNotFound ErrorKind = "not_found"
	// ErrAmbiguousMatch means a cardinality-one locator matched more than
	// one element.
	ErrAmbiguousMatch ErrorKind = "ambiguous_match"
	// ErrNotInteractable means the element resolved but never became
	// actionable: hidden, disabled, or covered.
	ErrNotInteractable ErrorKind = "not_interactable"
	// ErrOptionNotFound means a select step named an option the control
	// does not have.
	ErrOptionNotFound ErrorKind = "option_not_found"
	// ErrFileNotFound means an upload step referenced a missing local file.
	ErrFileNotFound ErrorKind = "file_not_found"
	// ErrNoTarget means the action needed an element or page and had
	// neither.
	ErrNoTarget ErrorKind = "no_target"
	// ErrCapture means a screenshot could not be taken or written.
	ErrCapture ErrorKind = "capture_error"
	// ErrTimeout means the step's total wait budget was exhausted.
	ErrTimeout ErrorKind = "timeout"
)

// StepError is the single error type crossing the dispatch boundary. Kind
// drives host branching; Err keeps the driver error for errors.Is/As.
type StepError struct {
	Kind    ErrorKind  `json:"kind"`
	Action  ActionKind `json:"action,omitempty"`
	Message string     `json:"message"`
	Err     error      `json:"-"`
}

func (e *StepError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s: %s: %s", e.Action, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StepError) Unwrap() error { return e.Err }

// Fatal reports whether the failure ends the session. Everything else
// leaves the session open for subsequent steps.
func (e *StepError) Fatal() bool {
	return e.Kind == ErrLaunch || e.Kind == ErrSessionNotReady
}

// NewStepError builds a classified failure wrapping the driver error.
func NewStepError(kind ErrorKind, action ActionKind, cause error, format string, args ...any) *StepError {
	return &StepError{
		Kind:    kind,
		Action:  action,
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
	}
}

// AsStepError extracts a *StepError from an error chain, or wraps an
// unclassified error as the given fallback kind.
func AsStepError(err error, action ActionKind, fallback ErrorKind) *StepError {
	if err == nil {
		return nil
	}
	var se *StepError
	if errors.As(err, &se) {
		if se.Action == "" {
			se.Action = action
		}
		return se
	}
	return NewStepError(fallback, action, err, "%s", err.Error())
}

// IsDriverTimeout reports whether a raw driver error is a deadline
// expiry. The driver does not export its timeout error type, so this
// inspects the message.
func IsDriverTimeout(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") && strings.Contains(msg, "exceeded")
}

// IsDriverNotInteractable reports whether a raw driver error means the
// element resolved but never became actionable before the deadline.
func IsDriverNotInteractable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"not visible",
		"element is not enabled",
		"element is disabled",
		"element is not stable",
		"intercepts pointer events",
		"element is outside of the viewport",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsDriverDetached reports whether a raw driver error means the element
// or page went away underneath the action. Detach is transient within a
// step: resolution is retried until the wait budget runs out.
func IsDriverDetached(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "detached") ||
		strings.Contains(msg, "element is not attached") ||
		strings.Contains(msg, "execution context was destroyed")
}
