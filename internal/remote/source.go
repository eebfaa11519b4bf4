// Package remote defines the contract with the remote metric service and
// provides its HTTP implementation.
//
// The core treats the service as a fetch-only source: given a kind and a
// date range it returns records, or fails with a classified error. There
// is no retry here; Auth failures stop the kind for the cycle and every
// other failure is left for the next scheduled invocation.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitals-app/vitals/internal/metric"
)

// Source fetches metric records from the remote service.
type Source interface {
	// Fetch returns the kind's records whose timestamps fall inside
	// [start, end]. Failures are reported as *Error.
	Fetch(ctx context.Context, kind metric.Kind, start, end time.Time) ([]metric.Record, error)
}

// Reason classifies a fetch failure.
type Reason string

const (
	// ReasonAuth means credentials were rejected. Not retriable within a
	// cycle; the kind's sync stops until credentials are fixed.
	ReasonAuth Reason = "auth"

	// ReasonRateLimited means the service asked us to back off. The next
	// scheduled invocation retries naturally.
	ReasonRateLimited Reason = "rate_limited"

	// ReasonNetwork covers transport failures and malformed responses.
	ReasonNetwork Reason = "network"

	// ReasonTimeout means the configured fetch deadline elapsed.
	ReasonTimeout Reason = "timeout"
)

// Error is a classified fetch failure for one metric kind.
type Error struct {
	Reason Reason
	Kind   metric.Kind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s failed (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf extracts the failure reason from an error chain. ok is false
// for errors that did not come from a Source.
func ReasonOf(err error) (Reason, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Reason, true
	}
	return "", false
}

// IsAuth reports whether err is a credential rejection.
func IsAuth(err error) bool {
	r, ok := ReasonOf(err)
	return ok && r == ReasonAuth
}
