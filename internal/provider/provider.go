// Package provider defines the polymorphic image-generation capability the
// orchestrator drives, plus concrete adapters (mock, OpenAI-shape,
// Gemini-shape HTTP-JSON).
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Artifact is the result of a successful generation call.
type Artifact struct {
	Bytes      []byte
	Width      uint32
	Height     uint32
	PromptUsed string
	Model      string
}

// Provider is the capability the orchestrator depends on. The orchestrator
// holds a shared Provider reference and never learns its concrete type.
type Provider interface {
	Generate(ctx context.Context, prompt string) (Artifact, error)
	Name() string
	Model() string
	PriceUSDPerImage() float64
}

// Kind classifies a generation failure so the orchestrator knows whether to
// retry, back off, or abort the job outright.
type Kind int

const (
	// KindTransient covers 5xx responses, network errors, and decode
	// failures: worth retrying under backoff.
	KindTransient Kind = iota
	// KindRateLimited is an HTTP 429 or a provider-signaled throttle: worth
	// retrying under backoff, same as Transient, but reported distinctly so
	// callers can log/metric it separately.
	KindRateLimited
	// KindFatal covers 4xx other than 429, schema mismatches, and missing
	// data: retrying will not help, abort the job immediately.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the error type returned by Provider.Generate. It carries enough
// context (HTTP status, a truncated response body) for logging without the
// orchestrator needing to understand any provider's wire format.
type Error struct {
	Kind        Kind
	HTTPStatus  int
	BodySnippet string
	Msg         string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("provider error (%s): status=%d body=%q", e.Kind, e.HTTPStatus, e.BodySnippet)
}

// RateLimited constructs a rate-limit classified Error.
func RateLimited(httpStatus int) *Error {
	return &Error{Kind: KindRateLimited, HTTPStatus: httpStatus}
}

// Transient constructs a transient-classified Error carrying the offending
// HTTP status and a truncated body for diagnostics.
func Transient(httpStatus int, bodySnippet string) *Error {
	return &Error{Kind: KindTransient, HTTPStatus: httpStatus, BodySnippet: bodySnippet}
}

// Fatal constructs a fatal-classified Error: the job should be abandoned
// without retry.
func Fatal(msg string) *Error {
	return &Error{Kind: KindFatal, Msg: msg}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// MaxDimension is a width/height bound equal to imaging.MaxImageDimension.
// No adapter checks its requests or responses against it.
const MaxDimension = 4096
