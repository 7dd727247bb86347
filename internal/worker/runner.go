// Package worker runs one or more long-lived consumers behind a dependency
// readiness check. Every consumer binary builds a Runner in its main.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BenTyson/evercraft-sub001/pkg/logger"
)

// Check pings one dependency before any consumer starts.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Consumer is anything with a blocking Run, such as *consumer.Service.
type Consumer interface {
	Run(ctx context.Context) error
}

// Params wires a Runner.
type Params struct {
	Name      string
	Logger    *logger.Logger
	Checks    []Check
	Consumers map[string]Consumer
}

// Runner starts every consumer and stops as soon as one exits.
type Runner struct {
	name      string
	logg      *logger.Logger
	checks    []Check
	consumers map[string]Consumer
}

func NewRunner(params Params) (*Runner, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, errors.New("worker name is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for consumerName, c := range params.Consumers {
		if c == nil {
			return nil, fmt.Errorf("consumer %q is nil", consumerName)
		}
	}
	return &Runner{
		name:      name,
		logg:      params.Logger,
		checks:    params.Checks,
		consumers: params.Consumers,
	}, nil
}

func (r *Runner) ensureReadiness(ctx context.Context) error {
	for _, check := range r.checks {
		if check.Ping == nil {
			continue
		}
		if err := check.Ping(ctx); err != nil {
			r.logg.Error(ctx, fmt.Sprintf("%s ping failed", check.Name), err)
			return fmt.Errorf("%s ping failed: %w", check.Name, err)
		}
	}
	r.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

// Run blocks until the context is canceled or a consumer stops. The first
// consumer error is returned; the remaining consumers are canceled.
func (r *Runner) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = r.logg.WithField(ctx, "worker", r.name)

	if err := r.ensureReadiness(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(r.consumers))
	for consumerName, c := range r.consumers {
		go func(name string, c Consumer) {
			cctx := r.logg.WithField(runCtx, "consumer", name)
			r.logg.Info(cctx, "consumer starting")
			err := c.Run(cctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				err = fmt.Errorf("consumer %s: %w", name, err)
			}
			errCh <- err
		}(consumerName, c)
	}

	select {
	case <-ctx.Done():
		r.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logg.Error(ctx, "consumer stopped unexpectedly", err)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.New("consumer stopped without error")
	}
}
