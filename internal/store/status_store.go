package store

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// StatusStoreConfig bounds the agent status store.
type StatusStoreConfig struct {
	// TTL is the retention window for a status record.
	TTL time.Duration
	// WorkingGrace extends retention for agents still reporting the
	// working state, so a long-running task does not vanish from view.
	WorkingGrace time.Duration
	// SweepInterval is how often expired entries are collected.
	SweepInterval time.Duration
	// MaxEntries is the hard size cap with oldest-first eviction.
	MaxEntries int
}

// DefaultStatusStoreConfig returns the default status store bounds.
func DefaultStatusStoreConfig() StatusStoreConfig {
	return StatusStoreConfig{
		TTL:           5 * time.Minute,
		WorkingGrace:  15 * time.Minute,
		SweepInterval: time.Minute,
		MaxEntries:    500,
	}
}

// StatusStore holds last-write-wins agent status records keyed by agent
// name. Each write overwrites the previous record wholesale.
type StatusStore struct {
	mu       sync.RWMutex
	statuses map[string]models.AgentStatus
	cfg      StatusStoreConfig

	stopOnce sync.Once
	stop     chan struct{}
}

// NewStatusStore creates a status store with the given bounds. Zero or
// negative config fields fall back to defaults.
func NewStatusStore(cfg StatusStoreConfig) *StatusStore {
	def := DefaultStatusStoreConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.WorkingGrace <= 0 {
		cfg.WorkingGrace = def.WorkingGrace
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	return &StatusStore{
		statuses: make(map[string]models.AgentStatus),
		cfg:      cfg,
		stop:     make(chan struct{}),
	}
}

// Set upserts an agent's status, stamping UpdatedAt.
func (s *StatusStore) Set(status models.AgentStatus) {
	status.UpdatedAt = time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.AgentName] = status
	s.enforceCapLocked()
}

// Get returns the most recent status for an agent.
func (s *StatusStore) Get(agentName string) (models.AgentStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[agentName]
	return status, ok
}

// All returns a snapshot of every status record.
func (s *StatusStore) All() []models.AgentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AgentStatus, 0, len(s.statuses))
	for _, status := range s.statuses {
		out = append(out, status)
	}
	return out
}

// Len returns the number of stored records.
func (s *StatusStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.statuses)
}

// Clear removes every entry.
func (s *StatusStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = make(map[string]models.AgentStatus)
}

// StartSweep launches the periodic TTL collector. It stops when ctx is
// cancelled or Stop is called.
func (s *StatusStore) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(time.Now())
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the sweep goroutine. Safe to call more than once.
func (s *StatusStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Sweep removes expired status records. Working agents get the longer
// grace window before expiry.
func (s *StatusStore) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for name, status := range s.statuses {
		ttl := s.cfg.TTL
		if status.Status == models.AgentStateWorking {
			ttl = s.cfg.WorkingGrace
		}
		if now.Sub(status.UpdatedAt) > ttl {
			delete(s.statuses, name)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[store] swept %d expired agent statuses, %d remaining", removed, len(s.statuses))
	}
}

// enforceCapLocked evicts the stalest records until the store is at or
// under MaxEntries.
func (s *StatusStore) enforceCapLocked() {
	for len(s.statuses) > s.cfg.MaxEntries {
		var oldestName string
		var oldest time.Time
		for name, status := range s.statuses {
			if oldestName == "" || status.UpdatedAt.Before(oldest) {
				oldestName, oldest = name, status.UpdatedAt
			}
		}
		delete(s.statuses, oldestName)
		log.Printf("[store] status store over capacity, evicted %s", oldestName)
	}
}
