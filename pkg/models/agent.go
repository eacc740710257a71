package models

import "time"

// Provider identifies which external LLM backend an agent routes to.
type Provider string

const (
	// ProviderAnthropic routes through the direct Anthropic API.
	ProviderAnthropic Provider = "anthropic"
	// ProviderBedrock routes through AWS Bedrock.
	ProviderBedrock Provider = "bedrock"
)

// AgentCapability describes one worker agent in the registry.
// Capabilities are immutable after registration; the registry is built
// once at startup from the agent catalogue.
type AgentCapability struct {
	// ID is the agent's stable identifier.
	ID string `json:"id" yaml:"id"`
	// Name is the human-facing name, also matched during routing.
	Name string `json:"name" yaml:"name"`
	// Skills are free-text expertise tags used for keyword scoring.
	Skills []string `json:"skills" yaml:"skills"`
	// Tools lists the tool identifiers the agent may invoke.
	Tools []string `json:"tools,omitempty" yaml:"tools"`
	// CanDelegate marks supervisor-eligible agents.
	CanDelegate bool `json:"can_delegate,omitempty" yaml:"can_delegate"`
	// Priority is the seniority rank; higher is more senior.
	Priority int `json:"priority" yaml:"priority"`
	// Provider is the LLM backend this agent routes to.
	Provider Provider `json:"provider" yaml:"provider"`
	// Model optionally pins a specific model for this agent.
	Model string `json:"model,omitempty" yaml:"model"`
}

// AgentState represents an agent's ephemeral, UI-facing state.
type AgentState string

const (
	AgentStateIdle      AgentState = "idle"
	AgentStateAnalyzing AgentState = "analyzing"
	AgentStateWorking   AgentState = "working"
	AgentStateWaiting   AgentState = "waiting"
	AgentStateCompleted AgentState = "completed"
	AgentStateBlocked   AgentState = "blocked"
	AgentStateError     AgentState = "error"
)

// Valid returns true if the state is a known value.
func (s AgentState) Valid() bool {
	switch s {
	case AgentStateIdle, AgentStateAnalyzing, AgentStateWorking, AgentStateWaiting,
		AgentStateCompleted, AgentStateBlocked, AgentStateError:
		return true
	default:
		return false
	}
}

// AgentStatus is the last-write-wins status record consumed by UI layers.
// It is overwritten on every status change and independently TTL-evicted;
// it is not tied to a specific plan.
type AgentStatus struct {
	// AgentName identifies the agent being reported on.
	AgentName string `json:"agent_name"`
	// Status is the agent's current state.
	Status AgentState `json:"status"`
	// CurrentTask describes what the agent is working on, if anything.
	CurrentTask string `json:"current_task,omitempty"`
	// Progress is a 0-100 completion estimate.
	Progress int `json:"progress"`
	// Output is the most recent output snippet.
	Output string `json:"output,omitempty"`
	// UpdatedAt is when this record was last written.
	UpdatedAt time.Time `json:"updated_at"`
}
