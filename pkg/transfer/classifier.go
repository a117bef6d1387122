// Package transfer moves chunk payloads between local workspaces and the
// hosting backend, absorbing the backend's unreliable, rate-limited behavior
// behind bounded retries with exponential backoff.
package transfer

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/gitdrive/gitdrive/pkg/githost"
)

// Class buckets a backend failure by how the engine should respond.
type Class int

const (
	// ClassPermanent failures are surfaced immediately; retry is futile.
	ClassPermanent Class = iota

	// ClassTransient failures are retried with the standard backoff curve.
	ClassTransient

	// ClassRateLimited failures are retried after a longer wait. The
	// backend's throttling limits are stricter and differently shaped than
	// ordinary network flakiness, so they get their own treatment.
	ClassRateLimited
)

func (c Class) String() string {
	switch c {
	case ClassPermanent:
		return "permanent"
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate-limited"
	default:
		return "unknown"
	}
}

// Classifier decides the Class of a backend error. It is part of the
// engine's configuration, not hardcoded law: the backend's limits are
// undocumented and shift over time, so operators must be able to retune
// classification without code changes.
type Classifier func(error) Class

// Classify is the default Classifier. Only failed operations are classified;
// err must be non-nil.
//
// Typed sentinels from the githost layer are matched first, then generic
// network errors, then a handful of substrings that git's HTTP transport
// produces for throttling and flaky-connection failures. Unknown errors
// default to transient: against an opaque backend a wasted retry is cheaper
// than a spurious abort, and the bounded attempt budget caps the damage.
func Classify(err error) Class {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassPermanent
	case errors.Is(err, githost.ErrRateLimited), errors.Is(err, githost.ErrSecondaryLimited):
		return ClassRateLimited
	case errors.Is(err, githost.ErrRepoNotFound),
		errors.Is(err, githost.ErrRepoExists),
		errors.Is(err, githost.ErrObjectNotFound):
		return ClassPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"):
		return ClassRateLimited
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "unexpected eof"),
		strings.Contains(msg, "temporarily unavailable"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"):
		return ClassTransient
	}

	return ClassTransient
}
