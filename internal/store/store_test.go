package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/ShayCichocki/quorum/pkg/models"
)

func TestPlanStorePutGet(t *testing.T) {
	s := NewPlanStore(PlanStoreConfig{})
	plan := &models.Plan{ID: "p1", Request: "test"}
	s.Put(plan)

	if plan.CreatedAt.IsZero() || plan.LastAccessedAt.IsZero() {
		t.Fatal("Put should stamp bookkeeping timestamps")
	}

	got, ok := s.Get("p1")
	if !ok || got.ID != "p1" {
		t.Fatalf("Get returned %v, %v", got, ok)
	}
	if _, ok := s.Get("missing"); ok {
		t.Fatal("Get should miss unknown IDs")
	}
}

func TestPlanStoreSweepCompletedFromCreation(t *testing.T) {
	s := NewPlanStore(PlanStoreConfig{TTL: 30 * time.Minute})

	done := &models.Plan{ID: "done", IsComplete: true}
	s.Put(done)
	done.CreatedAt = time.Now().Add(-time.Hour)

	fresh := &models.Plan{ID: "fresh", IsComplete: true}
	s.Put(fresh)

	s.Sweep(time.Now())

	if _, ok := s.Get("done"); ok {
		t.Fatal("expired completed plan should be swept")
	}
	if _, ok := s.Get("fresh"); !ok {
		t.Fatal("fresh plan should survive the sweep")
	}
}

func TestPlanStoreSweepIncompleteFromLastAccess(t *testing.T) {
	s := NewPlanStore(PlanStoreConfig{TTL: 30 * time.Minute})

	idle := &models.Plan{ID: "idle"}
	s.Put(idle)
	idle.CreatedAt = time.Now().Add(-2 * time.Hour)
	idle.LastAccessedAt = time.Now().Add(-time.Hour)

	active := &models.Plan{ID: "active"}
	s.Put(active)
	active.CreatedAt = time.Now().Add(-2 * time.Hour)
	// Recent read keeps an old-but-watched plan alive.
	s.Get("active")

	s.Sweep(time.Now())

	if _, ok := s.Get("idle"); ok {
		t.Fatal("idle incomplete plan should be swept")
	}
	if _, ok := s.Get("active"); !ok {
		t.Fatal("recently accessed plan should survive the sweep")
	}
}

func TestPlanStoreCapEvictsOldestFirst(t *testing.T) {
	const limit = 5
	s := NewPlanStore(PlanStoreConfig{MaxEntries: limit})

	for i := 0; i < limit; i++ {
		plan := &models.Plan{ID: fmt.Sprintf("p%d", i)}
		s.Put(plan)
		plan.LastAccessedAt = time.Now().Add(time.Duration(i-limit) * time.Minute)
	}

	s.Put(&models.Plan{ID: "overflow"})

	if s.Len() != limit {
		t.Fatalf("Len = %d, want %d", s.Len(), limit)
	}
	if _, ok := s.Get("p0"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := s.Get("overflow"); !ok {
		t.Fatal("new entry should be present after eviction")
	}
	for i := 1; i < limit; i++ {
		if _, ok := s.Get(fmt.Sprintf("p%d", i)); !ok {
			t.Fatalf("p%d should have survived eviction", i)
		}
	}
}

func TestPlanStoreClear(t *testing.T) {
	s := NewPlanStore(PlanStoreConfig{})
	s.Put(&models.Plan{ID: "p1"})
	s.Put(&models.Plan{ID: "p2"})
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("Len after Clear = %d, want 0", s.Len())
	}
}

func TestStatusStoreLastWriteWins(t *testing.T) {
	s := NewStatusStore(StatusStoreConfig{})
	s.Set(models.AgentStatus{AgentName: "backend", Status: models.AgentStateWorking, Progress: 10})
	s.Set(models.AgentStatus{AgentName: "backend", Status: models.AgentStateCompleted, Progress: 100})

	got, ok := s.Get("backend")
	if !ok {
		t.Fatal("status should exist")
	}
	if got.Status != models.AgentStateCompleted || got.Progress != 100 {
		t.Fatalf("got %+v, want the later write", got)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestStatusStoreWorkingGrace(t *testing.T) {
	s := NewStatusStore(StatusStoreConfig{TTL: 5 * time.Minute, WorkingGrace: 15 * time.Minute})

	s.Set(models.AgentStatus{AgentName: "idle-agent", Status: models.AgentStateIdle})
	s.Set(models.AgentStatus{AgentName: "working-agent", Status: models.AgentStateWorking})

	// Backdate both past the base TTL but inside the working grace.
	s.mu.Lock()
	for name, status := range s.statuses {
		status.UpdatedAt = time.Now().Add(-10 * time.Minute)
		s.statuses[name] = status
	}
	s.mu.Unlock()

	s.Sweep(time.Now())

	if _, ok := s.Get("idle-agent"); ok {
		t.Fatal("idle status past TTL should be swept")
	}
	if _, ok := s.Get("working-agent"); !ok {
		t.Fatal("working status inside grace should survive")
	}
}

func TestStatusStoreCapEvictsStalest(t *testing.T) {
	const limit = 3
	s := NewStatusStore(StatusStoreConfig{MaxEntries: limit})

	for i := 0; i < limit; i++ {
		name := fmt.Sprintf("agent-%d", i)
		s.Set(models.AgentStatus{AgentName: name, Status: models.AgentStateIdle})
		s.mu.Lock()
		status := s.statuses[name]
		status.UpdatedAt = time.Now().Add(time.Duration(i-limit) * time.Minute)
		s.statuses[name] = status
		s.mu.Unlock()
	}

	s.Set(models.AgentStatus{AgentName: "newest", Status: models.AgentStateWorking})

	if s.Len() != limit {
		t.Fatalf("Len = %d, want %d", s.Len(), limit)
	}
	if _, ok := s.Get("agent-0"); ok {
		t.Fatal("stalest record should have been evicted")
	}
	if _, ok := s.Get("newest"); !ok {
		t.Fatal("new record should be present after eviction")
	}
}
