package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Task is a long-running component. It must return once ctx is cancelled.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type Runner struct {
	Logger *zap.Logger
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log}
}

// WithSignals runs every task until SIGINT/SIGTERM or until one of them fails.
// The first failure cancels the rest. Returns a process exit code.
func (r *Runner) WithSignals(tasks ...Task) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.Supervise(ctx, tasks...)
}

// Supervise is WithSignals without the signal wiring.
func (r *Runner) Supervise(ctx context.Context, tasks ...Task) int {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			r.Logger.Info("task starting", zap.String("task", t.Name))
			err := t.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
				r.Logger.Error("task exited with error", zap.String("task", t.Name), zap.Error(err))
				return err
			}
			r.Logger.Info("task stopped", zap.String("task", t.Name))
			return nil
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		r.Logger.Info("shutdown signal received")
	}
	if err != nil {
		return 1
	}
	return 0
}

func Exit(code int) {
	os.Exit(code)
}
