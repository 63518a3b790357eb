// Package transform calls the remote text-transformation service.
//
// A Transform call makes exactly one network round trip. SDK retries are
// disabled; whether to try again is the caller's decision.
package transform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"markestedt/tokenspark/failure"
)

// Request is one transformation. It is built fresh for every call.
type Request struct {
	Input        string
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
	// BaseURL is the service endpoint; empty uses the provider default
	BaseURL string
}

// Provider defines the interface for text transformation services
type Provider interface {
	Name() string
	Transform(ctx context.Context, req Request) (string, error)
}

// Credentials supplies the API key
type Credentials interface {
	LoadSecret() (string, bool, error)
}

// NewProvider creates a provider by name. client may be nil.
func NewProvider(name string, creds Credentials, client *http.Client) (Provider, error) {
	switch name {
	case "openai", "":
		return NewOpenAIProvider(creds, client), nil
	case "anthropic":
		return NewAnthropicProvider(creds, client), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

// apiKey loads the secret or fails with CredentialMissing / StoreUnavailable
func apiKey(creds Credentials) (string, error) {
	if creds == nil {
		return "", failure.New(failure.CredentialMissing, "no credential store")
	}
	key, ok, err := creds.LoadSecret()
	if err != nil {
		return "", failure.Wrap(failure.StoreUnavailable, err)
	}
	if !ok || key == "" {
		return "", failure.New(failure.CredentialMissing, "")
	}
	return key, nil
}

// withTimeout bounds ctx by the request timeout, if one is set
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// apiStatusFunc extracts the HTTP status and the service's error message
// from an SDK API error. ok is false for errors that carry no status.
type apiStatusFunc func(err error) (status int, message string, ok bool)

// classify maps a transport or SDK error to a failure
func classify(ctx context.Context, err error, statusOf apiStatusFunc) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return failure.Wrap(failure.Timeout, err)
	}

	if status, message, ok := statusOf(err); ok {
		if status == http.StatusTooManyRequests {
			return failure.Wrap(failure.RateLimited, err)
		}
		// A gateway page or empty body is not an answer from the service
		if strings.TrimSpace(message) == "" {
			return &failure.Error{
				Kind:   failure.InvalidResponse,
				Detail: fmt.Sprintf("HTTP %d without an error body", status),
				Err:    err,
			}
		}
		return &failure.Error{
			Kind:   failure.Network,
			Detail: fmt.Sprintf("HTTP %d %s: %s", status, http.StatusText(status), message),
			Err:    err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failure.Wrap(failure.Timeout, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return failure.Wrap(failure.Network, urlErr.Err)
	}

	// Anything else came from decoding the response body
	return failure.Wrap(failure.InvalidResponse, err)
}

// result rejects empty output, which would otherwise erase the selection
func result(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", failure.New(failure.InvalidResponse, "empty completion")
	}
	return text, nil
}
