package main

import (
	"errors"
	"fmt"
)

// Error categories drive retry and reporting policy. They are deliberately
// coarse: callers branch on category with errors.Is, not on message text.
var (
	// ErrTransport marks a failure at the network/transport layer talking to
	// the upstream node (dial failure, reset connection, timeout). Safe to
	// retry with backoff.
	ErrTransport = errors.New("transport error")

	// ErrAuth marks an authentication failure against the upstream node
	// (401/403, bad cookie). Never retried; the caller must treat the RPC
	// client as unusable until reconfigured.
	ErrAuth = errors.New("auth error")

	// ErrProtocol marks a malformed or out-of-spec message from a Stratum
	// client. Bounded tolerance applies; see noteProtocolViolation.
	ErrProtocol = errors.New("protocol error")

	// ErrStaleJob, ErrDuplicateShare and ErrLowDifficulty are domain
	// rejections reported to the submitting miner only; they never affect
	// other clients or the job manager's state.
	ErrStaleJob       = errors.New("stale job")
	ErrDuplicateShare = errors.New("duplicate share")
	ErrLowDifficulty  = errors.New("low difficulty share")
	ErrUnauthorized   = errors.New("unauthorized worker")

	// ErrUpstreamLogical marks a well-formed RPC response carrying an
	// RPC-level error (e.g. submitblock rejecting a stale block). Not
	// retried; the caller downgrades a would-be block submission to an
	// accepted share.
	ErrUpstreamLogical = errors.New("upstream logical error")

	// ErrFatal marks a startup-time condition the server cannot recover
	// from (bad config, upstream unreachable after retry budget).
	ErrFatal = errors.New("fatal error")
)

// stratumErrCode maps the error taxonomy onto the reserved Stratum error
// codes used in the wire protocol's [code, message, data] error array.
const (
	stratumErrOther            = 20
	stratumErrJobNotFound      = 21
	stratumErrDuplicateShare   = 22
	stratumErrLowDifficulty    = 23
	stratumErrUnauthorizedWork = 24
)

func stratumCodeFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrStaleJob):
		return stratumErrJobNotFound, "job not found"
	case errors.Is(err, ErrDuplicateShare):
		return stratumErrDuplicateShare, "duplicate share"
	case errors.Is(err, ErrLowDifficulty):
		return stratumErrLowDifficulty, "low difficulty share"
	case errors.Is(err, ErrUnauthorized):
		return stratumErrUnauthorizedWork, "unauthorized worker"
	default:
		return stratumErrOther, "other"
	}
}

// rejectReason classifies why a share failed validation, independent of the
// Stratum wire code, for logging and metrics.
type rejectReason int

const (
	rejectNone rejectReason = iota
	rejectShape
	rejectStaleJob
	rejectNonceRange
	rejectDuplicate
	rejectInvalidPoW
	rejectLowDifficulty
	rejectUnauthorized
)

func (r rejectReason) String() string {
	switch r {
	case rejectNone:
		return "none"
	case rejectShape:
		return "malformed"
	case rejectStaleJob:
		return "stale job"
	case rejectNonceRange:
		return "nonce out of range"
	case rejectDuplicate:
		return "duplicate share"
	case rejectInvalidPoW:
		return "invalid proof of work"
	case rejectLowDifficulty:
		return "low difficulty share"
	case rejectUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// wrappedError attaches a rejectReason and Stratum code to a sentinel
// category error so callers can both errors.Is against the category and
// recover the wire-level presentation in one value.
type wrappedError struct {
	category error
	reason   rejectReason
	detail   string
}

func (e *wrappedError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("%s: %s", e.category, e.detail)
	}
	return e.category.Error()
}

func (e *wrappedError) Unwrap() error { return e.category }

func newRejectError(category error, reason rejectReason, detail string) *wrappedError {
	return &wrappedError{category: category, reason: reason, detail: detail}
}

// categorizedError attaches one of this file's sentinel categories to an
// RPC-layer error while preserving the concrete cause for errors.As (e.g.
// *httpStatusError, net.Error). Unwrap returning []error lets errors.Is/As
// walk both branches, so callers can both categorize
// (errors.Is(err, ErrTransport)) and inspect the concrete failure.
type categorizedError struct {
	category error
	cause    error
}

func (e *categorizedError) Error() string { return fmt.Sprintf("%s: %v", e.category, e.cause) }

func (e *categorizedError) Unwrap() []error { return []error{e.category, e.cause} }

// categorize wraps cause under category, or returns nil if cause is nil.
func categorize(category, cause error) error {
	if cause == nil {
		return nil
	}
	return &categorizedError{category: category, cause: cause}
}
