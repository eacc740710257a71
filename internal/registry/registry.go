// Package registry holds the agent capability catalogue and routes task
// descriptions to the best-fit agent.
package registry

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/quorum/pkg/models"
)

//go:embed catalogue.yaml
var defaultCatalogue []byte

// Registry is the process-wide lookup table of agent capabilities.
// It is built once at startup and read-only afterwards, so no locking
// is needed. Iteration order is registration order, which the router's
// tie-break rule depends on.
type Registry struct {
	agents []models.AgentCapability
	byID   map[string]int
}

// catalogueFile is the YAML shape of the agent catalogue.
type catalogueFile struct {
	Agents []models.AgentCapability `yaml:"agents"`
}

// New builds a registry from the given capabilities, preserving order.
func New(agents []models.AgentCapability) (*Registry, error) {
	r := &Registry{byID: make(map[string]int, len(agents))}
	for _, a := range agents {
		if a.ID == "" {
			return nil, fmt.Errorf("agent capability with empty id")
		}
		if _, dup := r.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %s", a.ID)
		}
		r.byID[a.ID] = len(r.agents)
		r.agents = append(r.agents, a)
	}
	return r, nil
}

// Load builds a registry from a YAML catalogue file. An empty path loads
// the embedded default catalogue.
func Load(path string) (*Registry, error) {
	data := defaultCatalogue
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read agent catalogue: %w", err)
		}
		data = b
	}

	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse agent catalogue: %w", err)
	}
	if len(file.Agents) == 0 {
		return nil, fmt.Errorf("agent catalogue is empty")
	}

	return New(file.Agents)
}

// Get returns the capability for an agent ID.
func (r *Registry) Get(id string) (models.AgentCapability, bool) {
	i, ok := r.byID[id]
	if !ok {
		return models.AgentCapability{}, false
	}
	return r.agents[i], true
}

// All returns every capability in registration order.
func (r *Registry) All() []models.AgentCapability {
	out := make([]models.AgentCapability, len(r.agents))
	copy(out, r.agents)
	return out
}

// Supervisor returns the most senior delegation-capable agent, used by
// the hierarchical strategy and as the race judge.
func (r *Registry) Supervisor() (models.AgentCapability, bool) {
	var best models.AgentCapability
	found := false
	for _, a := range r.agents {
		if !a.CanDelegate {
			continue
		}
		if !found || a.Priority > best.Priority {
			best = a
			found = true
		}
	}
	return best, found
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	return len(r.agents)
}
