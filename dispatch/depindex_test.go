package dispatch

import (
	"sort"
	"testing"
	"time"

	"github.com/oneprompt/agentd/errors"
)

// ============================================================================
// Spider Web Index Test Universe
// ============================================================================
//
// Characters:
//   - Charlotte: the spider who strings threads between waiting jobs
//   - The Wind: completion events that shake threads loose
//
// Theme: each blocked job hangs by the threads of its dependencies; when
// the wind takes the last thread, the job drops back into the runnable set.
// ============================================================================

func TestCharlotteStringsAndReleasesThreads(t *testing.T) {
	t.Log("🕸️ Charlotte strings job-1 between two threads...")

	idx := NewDependencyIndex()

	if err := idx.RecordWait("job-1", []string{"dep-a", "dep-b"}); err != nil {
		t.Fatalf("RecordWait: %v", err)
	}

	if got := idx.OnCompleted("dep-a"); len(got) != 0 {
		t.Errorf("one thread left, nothing should drop yet: %v", got)
	}

	got := idx.OnCompleted("dep-b")
	if len(got) != 1 || got[0] != "job-1" {
		t.Errorf("last thread gone, job-1 should drop: %v", got)
	}

	t.Log("✓ Job released exactly when its last dependency finished")
}

func TestWindShakesAnEmptyWeb(t *testing.T) {
	t.Log("🍃 The wind blows through an empty web...")

	idx := NewDependencyIndex()

	if got := idx.OnCompleted("nobody-waits-on-me"); got != nil {
		t.Errorf("completion with no waiters should be a no-op: %v", got)
	}
}

func TestDuplicateCompletionIsIdempotent(t *testing.T) {
	t.Log("🍃 The same gust arrives twice...")

	idx := NewDependencyIndex()
	idx.RecordWait("job-1", []string{"dep-a"})

	first := idx.OnCompleted("dep-a")
	if len(first) != 1 {
		t.Fatalf("first completion should release job-1: %v", first)
	}

	second := idx.OnCompleted("dep-a")
	if second != nil {
		t.Errorf("duplicate completion must release nothing: %v", second)
	}

	t.Log("✓ A completion only counts once")
}

func TestOneThreadHoldsManyJobs(t *testing.T) {
	t.Log("🕸️ Three jobs hang from the same thread...")

	idx := NewDependencyIndex()
	idx.RecordWait("job-1", []string{"shared"})
	idx.RecordWait("job-2", []string{"shared"})
	idx.RecordWait("job-3", []string{"shared", "other"})

	got := idx.OnCompleted("shared")
	sort.Strings(got)
	if len(got) != 2 || got[0] != "job-1" || got[1] != "job-2" {
		t.Errorf("jobs 1 and 2 should drop, job-3 still holds 'other': %v", got)
	}

	got = idx.OnCompleted("other")
	if len(got) != 1 || got[0] != "job-3" {
		t.Errorf("job-3 should drop last: %v", got)
	}
}

func TestCharlotteRefusesSelfLoops(t *testing.T) {
	t.Log("🕸️ A job tries to hang from its own thread...")

	idx := NewDependencyIndex()

	err := idx.RecordWait("job-1", []string{"job-1"})
	if !errors.IsInvalidDependency(err) {
		t.Errorf("self-wait must be ErrInvalidDependency, got %v", err)
	}
}

func TestCharlotteRefusesCycles(t *testing.T) {
	t.Log("🕸️ Three jobs try to hang from each other in a ring...")

	idx := NewDependencyIndex()

	if err := idx.RecordWait("a", []string{"b"}); err != nil {
		t.Fatalf("a->b: %v", err)
	}
	if err := idx.RecordWait("b", []string{"c"}); err != nil {
		t.Fatalf("b->c: %v", err)
	}

	// c -> a closes the ring: a waits on b waits on c waits on a
	err := idx.RecordWait("c", []string{"a"})
	if !errors.IsInvalidDependency(err) {
		t.Errorf("cycle must be ErrInvalidDependency, got %v", err)
	}

	// The rejected registration must leave no trace
	if got := idx.Outstanding("c"); got != nil {
		t.Errorf("rejected registration leaked state: %v", got)
	}

	t.Log("✓ The ring is refused before anyone deadlocks")
}

func TestRemoveWaiterDropsAllThreads(t *testing.T) {
	t.Log("✂️ The watchdog cuts job-1 out of the web...")

	idx := NewDependencyIndex()
	idx.RecordWait("job-1", []string{"dep-a", "dep-b"})

	idx.RemoveWaiter("job-1")

	if got := idx.OnCompleted("dep-a"); got != nil {
		t.Errorf("cut job must not be released by late completions: %v", got)
	}
	if got := idx.Outstanding("job-1"); got != nil {
		t.Errorf("cut job still has outstanding threads: %v", got)
	}
}

func TestRebuildFromBlockedRows(t *testing.T) {
	t.Log("🕸️ Charlotte re-spins the web from the ledger after a restart...")

	idx := NewDependencyIndex()

	now := time.Now()
	blocked := []*Job{
		{ID: "still-waiting", Status: JobStatusBlocked, WaitingOn: []string{"open-dep", "done-dep"}, CreatedAt: now, UpdatedAt: now},
		{ID: "all-done", Status: JobStatusBlocked, WaitingOn: []string{"done-dep"}, CreatedAt: now, UpdatedAt: now},
	}

	terminal := map[string]bool{"done-dep": true}
	runnable, err := idx.Rebuild(blocked, func(depID string) (bool, error) {
		return terminal[depID], nil
	})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	if len(runnable) != 1 || runnable[0] != "all-done" {
		t.Errorf("satisfied job should be runnable after rebuild: %v", runnable)
	}

	if got := idx.Outstanding("still-waiting"); len(got) != 1 || got[0] != "open-dep" {
		t.Errorf("rebuild should register only the open dependency: %v", got)
	}

	got := idx.OnCompleted("open-dep")
	if len(got) != 1 || got[0] != "still-waiting" {
		t.Errorf("rebuilt waiter should release normally: %v", got)
	}

	t.Log("✓ The web survives a restart")
}
