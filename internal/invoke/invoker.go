// Package invoke wraps the external agent invocation capability with the
// cross-cutting dispatch policies: per-call timeouts, exponential backoff
// retry, circuit breaking per provider, and agent-availability waiting.
package invoke

import (
	"context"
	"errors"
)

// Invoker is the external LLM invocation capability. A retried call is a
// fresh attempt, not a resume, so implementations must be safe to call
// again after a failure.
type Invoker interface {
	// Invoke sends the prompts to the given agent and returns its text
	// response. The context carries the caller-imposed timeout.
	Invoke(ctx context.Context, agentID, systemPrompt, userPrompt string, prior []string) (string, error)
}

// ErrAgentUnavailable indicates the target agent stayed busy past the
// availability wait timeout.
var ErrAgentUnavailable = errors.New("agent unavailable")

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, agentID, systemPrompt, userPrompt string, prior []string) (string, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, agentID, systemPrompt, userPrompt string, prior []string) (string, error) {
	return f(ctx, agentID, systemPrompt, userPrompt, prior)
}
