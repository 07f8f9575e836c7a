package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor what an upstream failure means:
// whether another attempt may succeed and whether it counts against the
// dependency's breaker.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Executor guards calls to upstream dependencies (the access URL issuer, the
// content host, the broker). Each dependency name gets its own breaker, so a
// failing issuer does not stop content fetches.
type Executor struct {
	cfg Config

	mu     sync.Mutex
	guards map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:    cfg.normalize(),
		guards: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Execute runs fn against dependency with retries and, when enabled, behind
// the dependency's breaker. A rejected call returns gobreaker's open-state
// error; see IsCircuitOpen.
func (e *Executor) Execute(ctx context.Context, dependency string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: %s call is nil", dependency)
	}
	name := strings.TrimSpace(dependency)
	if name == "" {
		name = "upstream"
	}
	if classifier == nil {
		classifier = recordEveryFailure
	}

	if !e.cfg.BreakerEnabled {
		return e.attempt(ctx, name, fn, classifier)
	}
	_, err := e.guard(name, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, e.attempt(ctx, name, fn, classifier)
	})
	return err
}

// attempt calls fn until it succeeds, fails permanently, or runs out of
// attempts. The last error is returned as is.
func (e *Executor) attempt(ctx context.Context, dependency string, fn func(context.Context) error, classifier ErrorClassifier) error {
	var err error
	for n := 1; ; n++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if n >= e.cfg.RetryMaxAttempts || !classifier(err).Retryable {
			return err
		}

		wait := e.cfg.backoff(n)
		slog.Warn("upstream_call_retry",
			"dependency", dependency,
			"attempt", n,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"wait", wait.String(),
			"error", err,
		)
		if !sleepContext(ctx, wait) {
			return err
		}
	}
}

func (e *Executor) guard(dependency string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.guards[dependency]; ok {
		return breaker
	}
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        dependency,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: logBreakerChange,
	})
	e.guards[dependency] = breaker
	return breaker
}

// logBreakerChange warns when a dependency starts being short-circuited and
// notes when it recovers.
func logBreakerChange(dependency string, from, to gobreaker.State) {
	if to == gobreaker.StateOpen {
		slog.Warn("upstream_breaker_opened", "dependency", dependency, "from", from.String())
		return
	}
	slog.Info("upstream_breaker_state", "dependency", dependency, "from", from.String(), "to", to.String())
}

// States reports the breaker state per dependency called so far. It backs the
// health endpoint.
func (e *Executor) States() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]string, len(e.guards))
	for dependency, breaker := range e.guards {
		out[dependency] = breaker.State().String()
	}
	return out
}

// Call runs fn through e and returns its result. A nil executor calls fn
// directly.
func Call[T any](ctx context.Context, e *Executor, dependency string, fn func(context.Context) (T, error), classifier ErrorClassifier) (T, error) {
	var out T
	run := func(ctx context.Context) error {
		value, err := fn(ctx)
		if err != nil {
			return err
		}
		out = value
		return nil
	}
	if e == nil {
		return out, run(ctx)
	}
	err := e.Execute(ctx, dependency, run, classifier)
	return out, err
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func recordEveryFailure(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}

// sleepContext waits d and reports false if ctx ended first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
