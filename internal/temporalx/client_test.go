package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClampBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{10, 2 * time.Second},
	}
	for _, tc := range cases {
		if got := clampBackoff(250*time.Millisecond, 2*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: want=%v got=%v", tc.attempt, tc.want, got)
		}
	}
}

func TestIsRetryableRPC(t *testing.T) {
	if !isRetryableRPC(status.Error(codes.Unavailable, "down")) {
		t.Fatalf("unavailable should be retryable")
	}
	if isRetryableRPC(status.Error(codes.PermissionDenied, "no")) {
		t.Fatalf("permission denied should not be retryable")
	}
	if !isRetryableRPC(context.DeadlineExceeded) || isRetryableRPC(errors.New("x")) || isRetryableRPC(nil) {
		t.Fatalf("unexpected classification of non-rpc errors")
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	c, err := NewClient(context.Background(), Config{}, nil)
	if err != nil || c != nil {
		t.Fatalf("expected nil client without address: c=%v err=%v", c, err)
	}
}

func TestLoadTLSConfigRequiresPair(t *testing.T) {
	if _, err := loadTLSConfig(Config{ClientCAPath: "/tmp/ca.pem"}); err == nil {
		t.Fatalf("expected error without cert and key")
	}
}

func TestWithBackoffRetriesUntilSuccess(t *testing.T) {
	cfg := Config{DialMaxWait: time.Second, DialBackoff: time.Millisecond, DialBackoffMax: time.Millisecond}
	calls := 0
	err := withBackoff(context.Background(), cfg, nil, "dial", func(error) bool { return true }, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("want success after 3 calls, got calls=%d err=%v", calls, err)
	}
}

func TestWithBackoffStopsOnPermanentError(t *testing.T) {
	cfg := Config{DialMaxWait: time.Second, DialBackoff: time.Millisecond}
	denied := status.Error(codes.PermissionDenied, "no")
	calls := 0
	err := withBackoff(context.Background(), cfg, nil, "namespace", isRetryableRPC, func(context.Context) error {
		calls++
		return denied
	})
	if !errors.Is(err, denied) || calls != 1 {
		t.Fatalf("want one call returning denied, got calls=%d err=%v", calls, err)
	}
}
