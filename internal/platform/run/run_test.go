package run

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSupervise_FailureCancelsSiblings(t *testing.T) {
	r := New(zap.NewNop())
	stopped := make(chan struct{})

	code := r.Supervise(context.Background(),
		Task{Name: "waiter", Run: func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return ctx.Err()
		}},
		Task{Name: "broken", Run: func(context.Context) error {
			return errors.New("boom")
		}},
	)

	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sibling task was not cancelled")
	}
}

func TestSupervise_CleanShutdown(t *testing.T) {
	r := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code := r.Supervise(ctx, Task{Name: "idle", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}
