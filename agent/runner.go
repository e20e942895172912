package agent

import (
	"context"
	"fmt"

	"github.com/oneprompt/agentd/dispatch"
	"github.com/oneprompt/agentd/errors"
	"github.com/oneprompt/agentd/logger"
)

// Submitter starts jobs outside the current run (fire-and-forget spawns).
// *dispatch.Scheduler satisfies it.
type Submitter interface {
	Submit(kind string, input string) (*dispatch.Job, error)
}

// Runner adapts one agent definition to the dispatch.Runner interface.
// Each dispatch turn drives the engine loop under the agent's strategy
// until the strategy ends the run, the engine asks to wait, or the turn
// budget runs out.
type Runner struct {
	def       *Definition
	engine    TurnEngine
	submitter Submitter
}

// NewRunner builds a dispatch runner for one agent
func NewRunner(def *Definition, engine TurnEngine, submitter Submitter) *Runner {
	return &Runner{
		def:       def,
		engine:    engine,
		submitter: submitter,
	}
}

// Kind implements dispatch.Runner: the agent name is the job kind
func (r *Runner) Kind() string {
	return r.def.Name
}

// Run implements dispatch.Runner
func (r *Runner) Run(ctx context.Context, turn *dispatch.Turn) (dispatch.Outcome, error) {
	strategy := NewStrategy(r.def.Strategy)
	instruction := strategy.StartInstruction()

	// Resumption input goes to the first engine turn only
	resumed := turn.Resumed

	for i := 1; i <= r.def.MaxTurns; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req := &Request{
			Agent:       r.def,
			Instruction: instruction,
			Input:       turn.Job.Input,
			Turn:        i,
			Resumed:     resumed,
		}
		resumed = nil

		directive, err := r.engine.Turn(ctx, req)
		if err != nil {
			return nil, errors.Wrapf(err, "agent %s turn %d", r.def.Name, i)
		}

		switch d := directive.(type) {
		case Respond:
			end, next := strategy.NextTurn(d.Output, d.PlanComplete)
			if end {
				return dispatch.Done{Result: d.Output}, nil
			}
			instruction = next

		case Abort:
			err := d.Err
			if err == nil {
				err = errors.Newf("agent %s aborted without error", r.def.Name)
			}
			return dispatch.Fail{Err: err}, nil

		case Spawn:
			if r.submitter == nil {
				return dispatch.Fail{Err: errors.Newf("agent %s cannot spawn %s: no submitter configured", r.def.Name, d.Agent)}, nil
			}
			child, err := r.submitter.Submit(d.Agent, d.Input)
			if err != nil {
				return dispatch.Fail{Err: errors.Wrapf(err, "agent %s spawning %s", r.def.Name, d.Agent)}, nil
			}
			logger.Infow("Agent spawned job",
				"agent", r.def.Name,
				"spawned_kind", d.Agent,
				"spawned_job", child.ID,
			)
			instruction = fmt.Sprintf("Started %s as job %s. Continue with your plan.", d.Agent, child.ID)

		case Wait:
			deps := make([]dispatch.Dependency, 0, len(d.Waits))
			for _, w := range d.Waits {
				if w.JobID != "" {
					deps = append(deps, dispatch.WaitOn(w.JobID))
				} else {
					deps = append(deps, dispatch.SpawnJob(w.Agent, w.Input))
				}
			}
			return dispatch.Suspend{Deps: deps}, nil

		default:
			return nil, errors.AssertionFailedf("agent %s: unknown directive %T", r.def.Name, directive)
		}
	}

	return dispatch.Fail{Err: errors.Newf("agent %s exceeded %d turns without finishing", r.def.Name, r.def.MaxTurns)}, nil
}

// RegisterAll wires every discovered agent into the dispatch registry, in
// load order (callees first). Returns the load order.
func RegisterAll(registry *dispatch.RunnerRegistry, defs map[string]*Definition, engine TurnEngine, submitter Submitter) ([]string, error) {
	order, err := LoadOrder(defs)
	if err != nil {
		return nil, err
	}

	for _, name := range order {
		registry.Register(NewRunner(defs[name], engine, submitter))
	}

	logger.Infow("Registered agents", "count", len(order), "load_order", order)
	return order, nil
}
