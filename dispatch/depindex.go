package dispatch

import (
	"sync"

	"github.com/oneprompt/agentd/errors"
)

// DependencyIndex tracks which blocked jobs are waiting on which other jobs.
//
// The index is in-memory and rebuildable: the durable truth lives in the
// jobs table (status + waiting_on), and Rebuild reconstructs the maps from
// blocked rows on startup. Outstanding sets only shrink; a job becomes
// runnable the moment its outstanding set empties.
//
// Callers serialize registration and completion fan-out externally (the
// scheduler mutex); the internal lock only guards against concurrent reads.
type DependencyIndex struct {
	mu sync.RWMutex

	// outstanding maps a blocked job to the set of dependency IDs that
	// have not yet reached a terminal state
	outstanding map[string]map[string]struct{}

	// waiters maps a dependency ID to the set of blocked jobs waiting on it
	waiters map[string]map[string]struct{}
}

// NewDependencyIndex creates an empty dependency index
func NewDependencyIndex() *DependencyIndex {
	return &DependencyIndex{
		outstanding: make(map[string]map[string]struct{}),
		waiters:     make(map[string]map[string]struct{}),
	}
}

// RecordWait registers that jobID is blocked on deps. deps must already be
// filtered to non-terminal jobs. Returns ErrInvalidDependency if the
// registration would create a cycle (including jobID waiting on itself,
// directly or transitively).
func (idx *DependencyIndex) RecordWait(jobID string, deps []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, dep := range deps {
		if dep == jobID {
			return errors.NewInvalidDependency("job %s cannot wait on itself", jobID)
		}
		if idx.pathExists(dep, jobID) {
			return errors.NewInvalidDependency("job %s waiting on %s would create a cycle", jobID, dep)
		}
	}

	out := make(map[string]struct{}, len(deps))
	for _, dep := range deps {
		out[dep] = struct{}{}
	}
	idx.outstanding[jobID] = out

	for _, dep := range deps {
		if idx.waiters[dep] == nil {
			idx.waiters[dep] = make(map[string]struct{})
		}
		idx.waiters[dep][jobID] = struct{}{}
	}

	return nil
}

// pathExists reports whether `from` transitively waits on `to`.
// DFS over the outstanding edges with an explicit stack; the visited set
// doubles as the recursion guard since edges only shrink.
func (idx *DependencyIndex) pathExists(from, to string) bool {
	if from == to {
		return true
	}

	visited := map[string]struct{}{from: {}}
	stack := []string{from}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for dep := range idx.outstanding[current] {
			if dep == to {
				return true
			}
			if _, seen := visited[dep]; seen {
				continue
			}
			visited[dep] = struct{}{}
			stack = append(stack, dep)
		}
	}

	return false
}

// OnCompleted records that depID reached a terminal state and returns the
// IDs of blocked jobs whose outstanding set just emptied (in no particular
// order). Idempotent: a second call for the same depID returns nothing.
func (idx *DependencyIndex) OnCompleted(depID string) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	waiters := idx.waiters[depID]
	if len(waiters) == 0 {
		delete(idx.waiters, depID)
		return nil
	}
	delete(idx.waiters, depID)

	var runnable []string
	for jobID := range waiters {
		out := idx.outstanding[jobID]
		delete(out, depID)
		if len(out) == 0 {
			delete(idx.outstanding, jobID)
			runnable = append(runnable, jobID)
		}
	}

	return runnable
}

// RemoveWaiter drops a blocked job from the index entirely.
// Used by the watchdog when it forces a stuck job to failure.
func (idx *DependencyIndex) RemoveWaiter(jobID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for dep := range idx.outstanding[jobID] {
		delete(idx.waiters[dep], jobID)
		if len(idx.waiters[dep]) == 0 {
			delete(idx.waiters, dep)
		}
	}
	delete(idx.outstanding, jobID)
}

// Outstanding returns the dependency IDs a blocked job is still waiting on
func (idx *DependencyIndex) Outstanding(jobID string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := idx.outstanding[jobID]
	if len(out) == 0 {
		return nil
	}
	ids := make([]string, 0, len(out))
	for dep := range out {
		ids = append(ids, dep)
	}
	return ids
}

// Waiters returns the blocked jobs currently waiting on depID
func (idx *DependencyIndex) Waiters(depID string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	w := idx.waiters[depID]
	if len(w) == 0 {
		return nil
	}
	ids := make([]string, 0, len(w))
	for jobID := range w {
		ids = append(ids, jobID)
	}
	return ids
}

// Rebuild reconstructs the index from blocked job rows. isTerminal reports
// whether a dependency has already finished; finished dependencies are not
// re-registered. Returns the blocked jobs whose wait sets turn out to be
// fully satisfied, so the caller can re-admit them.
func (idx *DependencyIndex) Rebuild(blocked []*Job, isTerminal func(depID string) (bool, error)) ([]string, error) {
	idx.mu.Lock()
	idx.outstanding = make(map[string]map[string]struct{})
	idx.waiters = make(map[string]map[string]struct{})
	idx.mu.Unlock()

	var runnable []string
	for _, job := range blocked {
		var open []string
		for _, dep := range job.WaitingOn {
			done, err := isTerminal(dep)
			if err != nil {
				return nil, errors.Wrapf(err, "rebuild: checking dependency %s of job %s", dep, job.ID)
			}
			if !done {
				open = append(open, dep)
			}
		}

		if len(open) == 0 {
			runnable = append(runnable, job.ID)
			continue
		}

		if err := idx.RecordWait(job.ID, open); err != nil {
			return nil, errors.Wrapf(err, "rebuild: registering job %s", job.ID)
		}
	}

	return runnable, nil
}
