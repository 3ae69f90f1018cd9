// Package analyzer adapts external multimodal verdict providers to a single
// Port. A Port either returns a verdict or a *Failure; it never panics on a
// bad provider answer.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/linesmerrill/emergency-report-api/models"
)

// FailureKind is the typed reason an analyzer call produced no verdict
type FailureKind string

// Failure kinds
const (
	FailureTimeout           FailureKind = "TIMEOUT"
	FailureUnavailable       FailureKind = "UNAVAILABLE"
	FailureMalformedResponse FailureKind = "MALFORMED_RESPONSE"
	FailureQuotaExceeded     FailureKind = "QUOTA_EXCEEDED"
)

// Failure is returned instead of a verdict
type Failure struct {
	Kind FailureKind
	// Cause refines Kind, e.g. an UNAVAILABLE failure caused by a
	// malformed response that could not be recovered.
	Cause  FailureKind
	Detail string
	Err    error

	retryable bool
}

func (f *Failure) Error() string {
	msg := "analyzer " + f.Label()
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Err }

// Label is the short form stored in the analysis detail
func (f *Failure) Label() string {
	if f.Cause != "" && f.Cause != f.Kind {
		return fmt.Sprintf("%s/%s", f.Kind, f.Cause)
	}
	return string(f.Kind)
}

// AsFailure extracts a *Failure from err
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Forwardable reports whether a media URI can be handed to a remote
// analyzer. Local file URIs never leave the process.
func Forwardable(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") || strings.HasPrefix(uri, "data:")
}

// Request is what the analyzer is asked about
type Request struct {
	Description  string
	ImageURIs    []string
	DisasterType models.DisasterType
	Location     string
}

// Result is a successful analyzer answer
type Result struct {
	Verdict  models.AIVerdict
	Provider string
	Version  string
	// Raw is the provider's answer text, kept for debugging
	Raw string
}

// Port is the outbound analyzer contract
type Port interface {
	Analyze(ctx context.Context, req Request) (Result, error)
	Name() string
	Version() string
}
