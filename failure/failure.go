package failure

import (
	"errors"
	"fmt"
)

// Kind classifies why an invocation failed
type Kind int

const (
	ConfigurationError Kind = iota + 1
	CredentialMissing
	StoreUnavailable
	NoSelection
	InjectionDenied
	Timeout
	RateLimited
	InvalidResponse
	Network
	ApplyFailed
)

var kindNames = map[Kind]string{
	ConfigurationError: "configuration_error",
	CredentialMissing:  "credential_missing",
	StoreUnavailable:   "store_unavailable",
	NoSelection:        "no_selection",
	InjectionDenied:    "injection_denied",
	Timeout:            "timeout",
	RateLimited:        "rate_limited",
	InvalidResponse:    "invalid_response",
	Network:            "network",
	ApplyFailed:        "apply_failed",
}

// Kinds lists every failure kind
func Kinds() []Kind {
	return []Kind{
		ConfigurationError, CredentialMissing, StoreUnavailable, NoSelection,
		InjectionDenied, Timeout, RateLimited, InvalidResponse, Network, ApplyFailed,
	}
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Title returns the notification title shown for a failure kind
func (k Kind) Title() string {
	switch k {
	case ConfigurationError, CredentialMissing, StoreUnavailable:
		return "Configuration error"
	case NoSelection:
		return "No text selected"
	case InjectionDenied:
		return "Permission required"
	case Timeout:
		return "Request timed out"
	case RateLimited:
		return "Rate limited"
	case InvalidResponse:
		return "Invalid response"
	case Network:
		return "Network error"
	case ApplyFailed:
		return "Replace failed"
	default:
		return "Error"
	}
}

// Error is a pipeline failure carrying its kind and an optional cause
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

// New creates a failure of the given kind
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap creates a failure of the given kind around a cause
func Wrap(kind Kind, err error) *Error {
	e := &Error{Kind: kind, Err: err}
	if err != nil {
		e.Detail = err.Error()
	}
	return e
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the user-facing text for the failure
func (e *Error) Message() string {
	switch e.Kind {
	case ConfigurationError:
		if e.Detail != "" {
			return "Configuration error: " + e.Detail
		}
		return "Configuration error"
	case CredentialMissing:
		return "Please configure your API key (tokenspark secret set)"
	case StoreUnavailable:
		return "Could not read the stored API key: " + e.Detail
	case NoSelection:
		return "No text selected"
	case InjectionDenied:
		return "Synthetic keyboard input was refused. Grant accessibility/input permission and try again"
	case Timeout:
		return "Request timeout. Please check your network or try a different model"
	case RateLimited:
		return "API rate limit exceeded. Please try again later"
	case InvalidResponse:
		return "Invalid API response"
	case Network:
		return "Network error: " + e.Detail
	case ApplyFailed:
		return "Could not replace the selection: " + e.Detail
	default:
		return e.Error()
	}
}

// KindOf extracts the failure kind from err, ok is false when err is not a failure
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// Is reports whether err is a failure of the given kind
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// From converts err into a failure, using fallback when err carries no kind
func From(err error, fallback Kind) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Wrap(fallback, err)
}
