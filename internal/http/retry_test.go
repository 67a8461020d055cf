package http

import (
	"context"
	"fmt"
	nethttp "net/http"
	"testing"
)

// TestCheckRetry_TransientStatus verifies transient server statuses trigger a retry.
func TestCheckRetry_TransientStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		resp := &nethttp.Response{StatusCode: code}
		retry, err := checkRetry(context.Background(), resp, nil)
		if err != nil {
			t.Fatalf("status %d: unexpected error: %v", code, err)
		}
		if !retry {
			t.Errorf("status %d: expected retry", code)
		}
	}
}

// TestCheckRetry_DefinitiveStatus verifies precondition and client failures are not retried.
func TestCheckRetry_DefinitiveStatus(t *testing.T) {
	for _, code := range []int{200, 304, 400, 404, 412} {
		resp := &nethttp.Response{StatusCode: code}
		retry, err := checkRetry(context.Background(), resp, nil)
		if err != nil {
			t.Fatalf("status %d: unexpected error: %v", code, err)
		}
		if retry {
			t.Errorf("status %d: expected no retry", code)
		}
	}
}

// TestCheckRetry_NetworkError verifies connection-level failures are retried
// and opaque errors are not.
func TestCheckRetry_NetworkError(t *testing.T) {
	retry, err := checkRetry(context.Background(), nil, fmt.Errorf("read tcp: connection reset by peer"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !retry {
		t.Error("expected retry on connection reset")
	}

	retry, err = checkRetry(context.Background(), nil, fmt.Errorf("unsupported protocol scheme"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retry {
		t.Error("expected no retry on a non-network error")
	}
}

// TestCheckRetry_ContextCancelled verifies a cancelled context stops the retry loop.
func TestCheckRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	retry, err := checkRetry(ctx, nil, fmt.Errorf("connection refused"))
	if retry {
		t.Error("expected no retry after cancellation")
	}
	if err == nil {
		t.Fatal("expected the context error to propagate")
	}
}

// TestIsNetworkError covers the message classification boundary.
func TestIsNetworkError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("dial tcp: i/o timeout"), true},
		{fmt.Errorf("net/http: TLS handshake timeout"), true},
		{fmt.Errorf("write: broken pipe"), true},
		{fmt.Errorf("lookup host: no such host"), true},
		{fmt.Errorf("412 precondition failed"), false},
	}
	for _, c := range cases {
		if got := IsNetworkError(c.err); got != c.want {
			t.Errorf("IsNetworkError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
