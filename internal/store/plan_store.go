// Package store provides bounded, TTL-evicted in-memory stores for
// plans and agent statuses. Stores are injected service instances with
// an explicit lifecycle: New, StartSweep, Stop, Clear.
package store

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// PlanStoreConfig bounds the plan store.
type PlanStoreConfig struct {
	// TTL is the retention window. Completed plans age from creation;
	// incomplete plans age from last access.
	TTL time.Duration
	// SweepInterval is how often expired entries are collected.
	SweepInterval time.Duration
	// MaxEntries is the hard size cap. On overflow the oldest entries
	// are evicted until the store is back under the cap.
	MaxEntries int
}

// DefaultPlanStoreConfig returns the default plan store bounds.
func DefaultPlanStoreConfig() PlanStoreConfig {
	return PlanStoreConfig{
		TTL:           30 * time.Minute,
		SweepInterval: time.Minute,
		MaxEntries:    1000,
	}
}

// PlanStore holds active plans keyed by plan ID. Writes are single
// upserts under the lock; reads touch LastAccessedAt so an execution
// being watched does not expire mid-run.
type PlanStore struct {
	mu    sync.RWMutex
	plans map[string]*models.Plan
	cfg   PlanStoreConfig

	stopOnce sync.Once
	stop     chan struct{}
}

// NewPlanStore creates a plan store with the given bounds. Zero or
// negative config fields fall back to defaults.
func NewPlanStore(cfg PlanStoreConfig) *PlanStore {
	def := DefaultPlanStoreConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	return &PlanStore{
		plans: make(map[string]*models.Plan),
		cfg:   cfg,
		stop:  make(chan struct{}),
	}
}

// Put upserts a plan. A first insert stamps CreatedAt; every write
// refreshes LastAccessedAt. Overflow evicts oldest entries first.
func (s *PlanStore) Put(plan *models.Plan) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.LastAccessedAt = now
	s.plans[plan.ID] = plan
	s.enforceCapLocked()
}

// Get returns the plan and refreshes its access time.
func (s *PlanStore) Get(id string) (*models.Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[id]
	if ok {
		plan.LastAccessedAt = time.Now()
	}
	return plan, ok
}

// Delete removes a plan.
func (s *PlanStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, id)
}

// Len returns the number of stored plans.
func (s *PlanStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.plans)
}

// All returns a snapshot of the stored plans.
func (s *PlanStore) All() []*models.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Plan, 0, len(s.plans))
	for _, plan := range s.plans {
		out = append(out, plan)
	}
	return out
}

// Clear removes every entry.
func (s *PlanStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = make(map[string]*models.Plan)
}

// StartSweep launches the periodic TTL collector. It stops when ctx is
// cancelled or Stop is called.
func (s *PlanStore) StartSweep(ctx context.Context) {
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
func (s *PlanStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Sweep removes expired plans: completed plans aged past TTL from
// creation, incomplete plans idle past TTL from last access.
func (s *PlanStore) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, plan := range s.plans {
		var age time.Duration
		if plan.IsComplete {
			age = now.Sub(plan.CreatedAt)
		} else {
			age = now.Sub(plan.LastAccessedAt)
		}
		if age > s.cfg.TTL {
			delete(s.plans, id)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[store] swept %d expired plans, %d remaining", removed, len(s.plans))
	}
}

// enforceCapLocked evicts the oldest plans until the store is at or
// under MaxEntries. Completed plans age by creation time, incomplete
// by last access, matching the sweep rule.
func (s *PlanStore) enforceCapLocked() {
	for len(s.plans) > s.cfg.MaxEntries {
		var oldestID string
		var oldest time.Time
		for id, plan := range s.plans {
			ts := plan.LastAccessedAt
			if plan.IsComplete {
				ts = plan.CreatedAt
			}
			if oldestID == "" || ts.Before(oldest) {
				oldestID, oldest = id, ts
			}
		}
		delete(s.plans, oldestID)
		log.Printf("[store] plan store over capacity, evicted %s", oldestID)
	}
}
