package agent

import (
	"context"

	"github.com/oneprompt/agentd/dispatch"
)

// Request is one engine turn: the agent, the instruction for this turn,
// and the job context. Resumed is non-nil on the first turn after a
// suspension, one entry per waited-on job in declaration order.
type Request struct {
	Agent       *Definition
	Instruction string
	Input       string
	Turn        int
	Resumed     []dispatch.DependencyResult
}

// Directive is what the engine tells the runner to do after a turn
type Directive interface {
	directive()
}

// Respond carries the agent's output for this turn. PlanComplete signals
// the strategy that the agent considers its plan finished.
type Respond struct {
	Output       string
	PlanComplete bool
}

// Abort fails the run
type Abort struct {
	Err error
}

// Spawn starts another agent's job without waiting on it.
// The runner continues the current turn loop.
type Spawn struct {
	Agent string
	Input string
}

// Wait suspends the run on other jobs. Each entry either names an agent
// to spawn (Agent + Input) or an existing job (JobID). Order is preserved
// into the resumption results.
type Wait struct {
	Waits []WaitSpec
}

// WaitSpec is one dependency declaration of a Wait directive
type WaitSpec struct {
	Agent string
	Input string
	JobID string
}

func (Respond) directive() {}
func (Abort) directive()   {}
func (Spawn) directive()   {}
func (Wait) directive()    {}

// TurnEngine executes one agent turn. Implementations own the model
// transport; the runner only sees directives.
type TurnEngine interface {
	Turn(ctx context.Context, req *Request) (Directive, error)
}
