package dispatch

import (
	"context"
	"fmt"
	"sync"
)

// Dependency names one job a runner wants to wait on. Either JobID refers
// to an existing job, or Kind/Input describe a new job to be created as
// part of the suspension.
type Dependency struct {
	JobID string `json:"job_id,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Input string `json:"input,omitempty"`
}

// WaitOn references an existing job as a dependency
func WaitOn(jobID string) Dependency {
	return Dependency{JobID: jobID}
}

// SpawnJob describes a new job to create and wait on
func SpawnJob(kind, input string) Dependency {
	return Dependency{Kind: kind, Input: input}
}

// DependencyResult carries the terminal outcome of one dependency back to
// the job that waited on it
type DependencyResult struct {
	JobID  string `json:"job_id"`
	Kind   string `json:"kind"`
	Result string `json:"result,omitempty"`
	Failed bool   `json:"failed"`
	Error  string `json:"error,omitempty"`
}

// Turn is what a runner receives for one execution slice of a job.
// Resumed is nil on the first run; after a suspension it holds one entry
// per declared dependency, in declaration order.
type Turn struct {
	Job     *Job
	Resumed []DependencyResult
}

// Outcome is what a runner returns from a turn: Done, Fail, or Suspend
type Outcome interface {
	outcome()
}

// Done finishes the job with a result
type Done struct {
	Result string
}

// Fail finishes the job with an error
type Fail struct {
	Err error
}

// Suspend parks the job until every declared dependency reaches a terminal
// state. Declaration order is preserved into the resumption input.
type Suspend struct {
	Deps []Dependency
}

func (Done) outcome()    {}
func (Fail) outcome()    {}
func (Suspend) outcome() {}

// Runner executes jobs of one kind.
//
// Context cancellation: runners MUST check ctx.Done() periodically and
// exit cleanly when cancelled.
type Runner interface {
	// Kind returns the job kind this runner handles.
	// Used for runner registration and job routing.
	Kind() string

	// Run executes one slice of the job. A runner that needs other jobs'
	// results returns Suspend; it will be called again with those results
	// in turn.Resumed once all of them finish.
	Run(ctx context.Context, turn *Turn) (Outcome, error)
}

// RunnerRegistry manages runners by kind.
// Thread-safe for concurrent registration and lookup.
type RunnerRegistry struct {
	runners map[string]Runner
	mu      sync.RWMutex
}

// NewRunnerRegistry creates an empty runner registry
func NewRunnerRegistry() *RunnerRegistry {
	return &RunnerRegistry{
		runners: make(map[string]Runner),
	}
}

// Register adds a runner using its kind.
// Panics if a runner is already registered for that kind.
func (r *RunnerRegistry) Register(runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := runner.Kind()
	if _, exists := r.runners[kind]; exists {
		panic(fmt.Sprintf("runner already registered for kind: %s", kind))
	}
	r.runners[kind] = runner
}

// Get retrieves the runner for a kind.
// Returns nil if no runner is registered.
func (r *RunnerRegistry) Get(kind string) Runner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runners[kind]
}

// Has checks if a runner is registered for a kind
func (r *RunnerRegistry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.runners[kind]
	return exists
}

// Kinds returns all registered runner kinds
func (r *RunnerRegistry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.runners))
	for kind := range r.runners {
		kinds = append(kinds, kind)
	}
	return kinds
}
