package main

import (
	"errors"
	"testing"
)

func TestStratumCodeForMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{ErrStaleJob, stratumErrJobNotFound},
		{ErrDuplicateShare, stratumErrDuplicateShare},
		{ErrLowDifficulty, stratumErrLowDifficulty},
		{ErrUnauthorized, stratumErrUnauthorizedWork},
		{ErrTransport, stratumErrOther},
	}
	for _, c := range cases {
		code, _ := stratumCodeFor(c.err)
		if code != c.code {
			t.Errorf("stratumCodeFor(%v) = %d, want %d", c.err, code, c.code)
		}
	}
}

func TestWrappedErrorUnwrapsForErrorsIs(t *testing.T) {
	err := newRejectError(ErrStaleJob, rejectStaleJob, "job 0001 not found")
	if !errors.Is(err, ErrStaleJob) {
		t.Fatal("wrappedError must unwrap to its category for errors.Is")
	}
	if code, _ := stratumCodeForReject(err.reason); code != stratumErrJobNotFound {
		t.Fatalf("got %d", code)
	}
	code, _ := stratumCodeForReject(rejectStaleJob)
	if code != stratumErrJobNotFound {
		t.Fatalf("got %d", code)
	}
}

func TestRejectReasonStringsAreDistinct(t *testing.T) {
	reasons := []rejectReason{
		rejectNone, rejectShape, rejectStaleJob, rejectNonceRange,
		rejectDuplicate, rejectInvalidPoW, rejectLowDifficulty, rejectUnauthorized,
	}
	seen := make(map[string]bool)
	for _, r := range reasons {
		s := r.String()
		if s == "" || s == "unknown" {
			t.Errorf("reason %d has no distinct string", r)
		}
		if seen[s] {
			t.Errorf("duplicate string %q for reason %d", s, r)
		}
		seen[s] = true
	}
}
