package main

import (
	"errors"
	"io"
	"net/http"
	"testing"
)

func TestSanitizeNaNJSON(t *testing.T) {
	in := []byte(`{"difficulty":nan,"progress":-nan,"height":100}`)
	got := string(sanitizeNaNJSON(in))
	want := `{"difficulty":0,"progress":0,"height":100}`
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestSanitizeNaNJSONNoOpWhenAbsent(t *testing.T) {
	in := []byte(`{"height":100}`)
	got := sanitizeNaNJSON(in)
	if string(got) != string(in) {
		t.Fatalf("got %s, want unchanged %s", got, in)
	}
}

func TestShouldRetryNeverRetriesRPCError(t *testing.T) {
	c := &RPCClient{}
	err := &rpcError{Code: -1, Message: "logical failure"}
	if c.shouldRetry(err) {
		t.Fatal("rpcError must never be retried")
	}
}

func TestShouldRetryRetriesServerErrors(t *testing.T) {
	c := &RPCClient{}
	err := &httpStatusError{StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"}
	if !c.shouldRetry(err) {
		t.Fatal("5xx status errors should be retried")
	}
}

func TestShouldRetryNeverRetriesAuthWithoutCookie(t *testing.T) {
	c := &RPCClient{}
	err := &httpStatusError{StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"}
	if c.shouldRetry(err) {
		t.Fatal("401 without a cookie path configured should not be retried")
	}
}

func TestShouldRetryRetriesAuthWithCookie(t *testing.T) {
	c := &RPCClient{cookiePath: "/tmp/.cookie"}
	err := &httpStatusError{StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"}
	if !c.shouldRetry(err) {
		t.Fatal("401 with a cookie path configured should be retried (cookie may have rotated)")
	}
}

func TestIsRPCConnectivityErrorDetectsUnexpectedEOF(t *testing.T) {
	if !isRPCConnectivityError(io.ErrUnexpectedEOF) {
		t.Fatal("unexpected EOF should count as a connectivity error")
	}
}

func TestIsRPCConnectivityErrorRejectsLogicalError(t *testing.T) {
	err := &rpcError{Code: -1, Message: "bad params"}
	if isRPCConnectivityError(err) {
		t.Fatal("a well-formed rpcError is never a connectivity error")
	}
}

func TestCategorizedErrorPreservesConcreteTypeAndCategory(t *testing.T) {
	c := &RPCClient{}
	statusErr := &httpStatusError{StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"}
	err := categorize(ErrTransport, statusErr)
	if !errors.Is(err, ErrTransport) {
		t.Fatal("categorized error must unwrap to its category")
	}
	var got *httpStatusError
	if !errors.As(err, &got) || got.StatusCode != http.StatusBadGateway {
		t.Fatal("categorized error must still expose the concrete cause via errors.As")
	}
	if !c.shouldRetry(err) {
		t.Fatal("shouldRetry must see through the category wrapper to the 5xx status")
	}
}

func TestCategorizedUpstreamLogicalErrorNeverRetried(t *testing.T) {
	c := &RPCClient{}
	err := categorize(ErrUpstreamLogical, &rpcError{Code: -1, Message: "stale"})
	if c.shouldRetry(err) {
		t.Fatal("upstream logical errors must never be retried even when categorized")
	}
}
