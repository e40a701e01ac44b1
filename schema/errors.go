package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig indicates the resolved settings are unusable.
	ErrConfig = errors.New("config error")
	// ErrPTY indicates a pseudo-terminal could not be allocated or the shell could not be spawned.
	ErrPTY = errors.New("pty error")
	// ErrRawMode indicates the controlling terminal cannot be put into raw mode.
	ErrRawMode = errors.New("raw mode error")
	// ErrAssistant indicates an assistant request failed.
	ErrAssistant = errors.New("assistant request error")
	// ErrInjection indicates an accepted command could not be written to the shell.
	ErrInjection = errors.New("injection error")
)

// ErrorKind classifies assistant request failures.
type ErrorKind int

const (
	// ErrorNetwork covers transport failures and unexpected server responses.
	ErrorNetwork ErrorKind = iota + 1
	// ErrorAuth covers rejected credentials.
	ErrorAuth
	// ErrorRateLimit covers throttled requests.
	ErrorRateLimit
	// ErrorMalformedResponse covers replies that cannot be decoded into a command/answer pair.
	ErrorMalformedResponse
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNetwork:
		return "network"
	case ErrorAuth:
		return "auth"
	case ErrorRateLimit:
		return "rate_limit"
	case ErrorMalformedResponse:
		return "malformed_response"
	default:
		return fmt.Sprintf("error_kind(%d)", int(k))
	}
}

// AssistantError carries the kind of a failed assistant request.
type AssistantError struct {
	Kind ErrorKind
	Err  error
}

// NewAssistantError wraps err with kind.
func NewAssistantError(kind ErrorKind, err error) *AssistantError {
	return &AssistantError{Kind: kind, Err: err}
}

func (e *AssistantError) Error() string {
	if e.Err == nil {
		return "assistant " + e.Kind.String() + " error"
	}
	return "assistant " + e.Kind.String() + " error: " + e.Err.Error()
}

func (e *AssistantError) Unwrap() error {
	return e.Err
}

// Is makes every AssistantError match ErrAssistant.
func (e *AssistantError) Is(target error) bool {
	return target == ErrAssistant
}

// AssistantErrorKind extracts the kind from an AssistantError anywhere in the chain.
func AssistantErrorKind(err error) (ErrorKind, bool) {
	var assistantErr *AssistantError
	if errors.As(err, &assistantErr) {
		return assistantErr.Kind, true
	}
	return 0, false
}

// IsFatal reports whether err must end the session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrPTY) || errors.Is(err, ErrRawMode)
}
