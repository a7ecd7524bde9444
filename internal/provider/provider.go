// Package provider talks to hosted text-generation services.
//
// Every backend sends a prompt window and returns one completion. Failures
// are reported as *Error so callers can map them without inspecting
// provider-specific payloads.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dwiju-assistant/backend/internal/models"
)

// Request is one completion call.
type Request struct {
	Model       string
	Messages    []models.PromptMessage
	MaxTokens   int
	Temperature float64
}

// Completion is the provider's reply. Text is empty and Tokens zero when the
// provider omitted them.
type Completion struct {
	Text   string
	Tokens int
	Model  string
}

// Completer produces completions.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Kind classifies provider failures.
type Kind int

const (
	KindUnavailable Kind = iota
	KindAuth
	KindRateLimited
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	default:
		return "unavailable"
	}
}

// DefaultRetryAfter is suggested to callers when a rate-limited provider
// gives no hint of its own.
const DefaultRetryAfter = 20 * time.Second

// Error is a classified provider failure. Err keeps the raw cause for logs.
type Error struct {
	Kind       Kind
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}

// classifyStatus maps an HTTP status from the provider onto a Kind.
func classifyStatus(status int, err error) *Error {
	pe := &Error{Status: status, Err: err}
	switch {
	case status == 401 || status == 403:
		pe.Kind = KindAuth
	case status == 429:
		pe.Kind = KindRateLimited
		pe.RetryAfter = DefaultRetryAfter
	case status == 408 || status == 504:
		pe.Kind = KindTimeout
	default:
		pe.Kind = KindUnavailable
	}
	return pe
}

// classifyContext maps context failures. It returns nil for other errors.
func classifyContext(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return err
	case ctx.Err() != nil:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Error{Kind: KindTimeout, Err: err}
		}
		return ctx.Err()
	}
	return nil
}

// Unconfigured is used when no credentials are available. Every call fails
// with KindAuth so the service still starts and reports the problem per request.
type Unconfigured struct {
	Name string
}

// Complete implements Completer.
func (u Unconfigured) Complete(context.Context, Request) (*Completion, error) {
	return nil, &Error{Kind: KindAuth, Err: fmt.Errorf("%s api key is not configured", u.Name)}
}
