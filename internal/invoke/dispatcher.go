package invoke

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/ShayCichocki/quorum/internal/registry"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// RetryConfig configures the exponential backoff between task attempts.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns the default backoff settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// DispatcherConfig configures per-task dispatch behavior.
type DispatcherConfig struct {
	// InvokeTimeout is the ceiling for a single invocation attempt.
	InvokeTimeout time.Duration
	// WaitTimeout bounds how long dispatch waits for a busy agent.
	WaitTimeout time.Duration
	// Retry configures the backoff between failed attempts.
	Retry RetryConfig
}

// DefaultDispatcherConfig returns sensible dispatch defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		InvokeTimeout: 2 * time.Minute,
		WaitTimeout:   30 * time.Second,
		Retry:         DefaultRetryConfig(),
	}
}

// Dispatcher drives a single task invocation end to end: acquire the
// agent, invoke with a timeout through the provider's circuit breaker,
// and retry with exponential backoff until the task's budget runs out.
type Dispatcher struct {
	invoker  Invoker
	registry *registry.Registry
	avail    *AvailabilityTracker
	cfg      DispatcherConfig

	mu       sync.Mutex
	breakers map[models.Provider]*gobreaker.CircuitBreaker
}

// NewDispatcher creates a dispatcher over the given invoker.
func NewDispatcher(invoker Invoker, reg *registry.Registry, cfg DispatcherConfig) *Dispatcher {
	if cfg.InvokeTimeout <= 0 {
		cfg.InvokeTimeout = DefaultDispatcherConfig().InvokeTimeout
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultDispatcherConfig().WaitTimeout
	}
	if cfg.Retry.InitialInterval <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Dispatcher{
		invoker:  invoker,
		registry: reg,
		avail:    NewAvailabilityTracker(),
		cfg:      cfg,
		breakers: make(map[models.Provider]*gobreaker.CircuitBreaker),
	}
}

// Availability exposes the dispatcher's availability tracker.
func (d *Dispatcher) Availability() *AvailabilityTracker {
	return d.avail
}

// breaker returns the circuit breaker for a provider, creating it on
// first use.
func (d *Dispatcher) breaker(provider models.Provider) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cb, ok := d.breakers[provider]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(provider),
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[dispatch] circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Cancellations are not provider failures.
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})
	d.breakers[provider] = cb
	return cb
}

// Dispatch runs the task's invocation with the full policy stack. On
// failure it consumes the task's retries (task.RetryCount never exceeds
// task.MaxRetries) and returns the last error once the budget is gone.
func (d *Dispatcher) Dispatch(ctx context.Context, task *models.Task, systemPrompt string, prior []string) (string, error) {
	agentID := task.AssignedTo
	cap, ok := d.registry.Get(agentID)
	if !ok {
		return "", errors.New("task has no valid agent assignment")
	}

	if err := d.avail.Acquire(ctx, agentID, d.cfg.WaitTimeout); err != nil {
		return "", err
	}
	defer d.avail.Release(agentID)

	cb := d.breaker(cap.Provider)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.cfg.Retry.InitialInterval
	exp.MaxInterval = d.cfg.Retry.MaxInterval
	exp.Multiplier = d.cfg.Retry.Multiplier
	exp.RandomizationFactor = d.cfg.Retry.RandomizationFactor
	exp.MaxElapsedTime = 0 // attempts are bounded by MaxRetries, not wall time

	for {
		out, err := d.invokeOnce(ctx, cb, agentID, systemPrompt, task.Description, prior)
		if err == nil {
			return out, nil
		}

		// The breaker rejecting calls means the provider is down; burning
		// the remaining retries against it helps nobody.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if task.RetryCount >= task.MaxRetries {
			return "", err
		}

		task.RetryCount++
		wait := exp.NextBackOff()
		log.Printf("[dispatch] task %s attempt %d failed, retrying in %s: %v",
			task.ID, task.RetryCount, wait.Round(time.Millisecond), err)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
}

// invokeOnce performs a single invocation attempt with the per-call
// timeout, routed through the provider's circuit breaker.
func (d *Dispatcher) invokeOnce(ctx context.Context, cb *gobreaker.CircuitBreaker, agentID, systemPrompt, userPrompt string, prior []string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.InvokeTimeout)
	defer cancel()

	result, err := cb.Execute(func() (interface{}, error) {
		return d.invoker.Invoke(callCtx, agentID, systemPrompt, userPrompt, prior)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}
