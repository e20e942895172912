package agent

import (
	"sync"

	"github.com/oneprompt/agentd/logger"
)

// Strategy decides whether an agent run ends after a Respond directive,
// and if not, what the next instruction is
type Strategy interface {
	// StartInstruction is the instruction for the first turn of a run
	StartInstruction() string

	// NextTurn inspects the agent's output and decides: end the run with
	// this output, or continue with the returned instruction
	NextTurn(output string, planComplete bool) (end bool, next string)
}

// planStrategy is the default: the run continues until the agent reports
// its plan complete
type planStrategy struct{}

func (planStrategy) StartInstruction() string {
	return "Start by making a plan"
}

func (planStrategy) NextTurn(output string, planComplete bool) (bool, string) {
	if planComplete {
		return true, ""
	}
	return false, "Continue with the first step of the plan that is not checked yet. " +
		"After verifying the step goal mark it as checked."
}

var (
	strategyMu  sync.RWMutex
	strategyMap = map[string]func() Strategy{
		"default": func() Strategy { return planStrategy{} },
	}
)

// RegisterStrategy adds a strategy factory under a name.
// Registering an existing name overwrites it.
func RegisterStrategy(name string, factory func() Strategy) {
	strategyMu.Lock()
	defer strategyMu.Unlock()

	if _, exists := strategyMap[name]; exists {
		logger.Warnw("Strategy already registered, overwriting", "strategy", name)
	}
	strategyMap[name] = factory
}

// NewStrategy builds a fresh strategy instance by name.
// Unknown names fall back to the default strategy.
func NewStrategy(name string) Strategy {
	strategyMu.RLock()
	factory, ok := strategyMap[name]
	strategyMu.RUnlock()

	if !ok {
		logger.Warnw("Strategy not found, falling back to default", "strategy", name)
		factory = strategyMap["default"]
	}
	return factory()
}
