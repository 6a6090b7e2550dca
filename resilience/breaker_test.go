package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("service unavailable")

func fail(context.Context) error { return errTest }
func ok(context.Context) error   { return nil }

func TestClosedStateAllowsCalls(t *testing.T) {
	b := NewBreaker("market-analysis", 3, time.Second)
	called := false
	err := b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected call to run, err=%v called=%v", err, called)
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker("x", 3, time.Second)
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	if err := b.Execute(context.Background(), ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s", b.State())
	}
}

func TestHalfOpenTrialClosesOrReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker("x", 2, time.Second)
	b.now = func() time.Time { return now }
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	if err := b.Execute(context.Background(), ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	now = now.Add(2 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}
	if err := b.Execute(context.Background(), fail); !errors.Is(err, errTest) {
		t.Fatalf("trial should run, got %v", err)
	}
	if err := b.Execute(context.Background(), ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("failed trial should reopen, got %v", err)
	}

	now = now.Add(2 * time.Second)
	if err := b.Execute(context.Background(), ok); err != nil {
		t.Fatalf("trial: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestHalfOpenAllowsSingleTrial(t *testing.T) {
	now := time.Now()
	b := NewBreaker("x", 1, time.Second)
	b.now = func() time.Time { return now }
	_ = b.Execute(context.Background(), fail)
	now = now.Add(2 * time.Second)

	inTrial := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- b.Execute(context.Background(), func(context.Context) error {
			close(inTrial)
			<-release
			return nil
		})
	}()
	<-inTrial
	if err := b.Execute(context.Background(), ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second caller during trial should be rejected, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial: %v", err)
	}
}

func TestIsFailureAndCancellation(t *testing.T) {
	errBadRequest := errors.New("invalid params")
	b := NewBreaker("x", 1, time.Minute)
	b.IsFailure = func(err error) bool { return !errors.Is(err, errBadRequest) }

	_ = b.Execute(context.Background(), func(context.Context) error { return errBadRequest })
	_ = b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	if b.State() != StateClosed {
		t.Fatalf("client errors must not open the breaker")
	}
}

func TestDo(t *testing.T) {
	b := NewBreaker("x", 1, time.Minute)
	n, err := Do(context.Background(), b, func(context.Context) (int, error) { return 7, nil })
	if err != nil || n != 7 {
		t.Fatalf("Do = %d, %v", n, err)
	}
}
