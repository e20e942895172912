package commands

import (
	"sync"

	"github.com/oneprompt/agentd/agent"
	"github.com/oneprompt/agentd/config"
	"github.com/oneprompt/agentd/errors"
)

// agentd provides the job infrastructure; the model transport is supplied
// by the embedding application. Applications link this package, register
// an engine factory from their own main, and reuse the stock commands.
var (
	engineMu      sync.RWMutex
	engineFactory func(cfg *config.Config) (agent.TurnEngine, error)
)

// RegisterEngineFactory installs the TurnEngine constructor used by the
// serve and run commands. Calling it again replaces the previous factory.
func RegisterEngineFactory(factory func(cfg *config.Config) (agent.TurnEngine, error)) {
	engineMu.Lock()
	defer engineMu.Unlock()
	engineFactory = factory
}

func newEngine(cfg *config.Config) (agent.TurnEngine, error) {
	engineMu.RLock()
	factory := engineFactory
	engineMu.RUnlock()

	if factory == nil {
		return nil, errors.New("no turn engine registered: embed agentd and call commands.RegisterEngineFactory with your model transport")
	}
	return factory(cfg)
}
