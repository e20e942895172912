// Package agent loads declarative agent definitions and runs them as
// dispatch jobs. An agent is a directory: agent.json for the metadata and
// prompt.md for the system prompt. Agents call each other by spawning and
// waiting on each other's jobs.
package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/oneprompt/agentd/errors"
)

const (
	// DefaultModel is used when a definition does not name one
	DefaultModel = "o4-mini"

	// DefaultStrategy is used when a definition does not name one
	DefaultStrategy = "default"

	// DefaultMaxTurns bounds the engine loop of a single run
	DefaultMaxTurns = 20

	configFileName = "agent.json"
	promptFileName = "prompt.md"
)

// Definition is one agent's configuration
type Definition struct {
	// Name is the unique agent name; it doubles as the job kind
	Name string `json:"name"`

	// InputsDescription tells callers what input the agent expects
	InputsDescription string `json:"inputs_description,omitempty"`

	// Calls lists the other agents this agent may spawn or wait on.
	// Used for load ordering; a cycle here is a configuration error.
	Calls []string `json:"calls,omitempty"`

	// Model is the language model to use
	Model string `json:"model,omitempty"`

	// Strategy names the turn strategy; empty means default
	Strategy string `json:"strategy,omitempty"`

	// MaxTurns bounds engine turns per run; 0 means DefaultMaxTurns
	MaxTurns int `json:"max_turns,omitempty"`

	// Prompt is the system prompt, loaded from prompt.md
	Prompt string `json:"-"`

	// Dir is the directory the definition was loaded from
	Dir string `json:"-"`
}

// Discover loads every agent definition under dir.
// Each subdirectory with an agent.json is one agent; subdirectories
// without one are skipped.
func Discover(dir string) (map[string]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read agents directory %s", dir)
	}

	defs := make(map[string]*Definition)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		folder := filepath.Join(dir, entry.Name())
		cfgPath := filepath.Join(folder, configFileName)
		data, err := os.ReadFile(cfgPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", cfgPath)
		}

		var def Definition
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", cfgPath)
		}
		if def.Name == "" {
			return nil, errors.Newf("agent definition %s has no name", cfgPath)
		}
		if _, dup := defs[def.Name]; dup {
			return nil, errors.Newf("duplicate agent name %s in %s", def.Name, folder)
		}

		prompt, err := os.ReadFile(filepath.Join(folder, promptFileName))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read prompt for agent %s", def.Name)
		}
		def.Prompt = string(prompt)
		def.Dir = folder

		if def.Model == "" {
			def.Model = DefaultModel
		}
		if def.Strategy == "" {
			def.Strategy = DefaultStrategy
		}
		if def.MaxTurns <= 0 {
			def.MaxTurns = DefaultMaxTurns
		}

		defs[def.Name] = &def
	}

	return defs, nil
}

// LoadOrder topologically sorts definitions by their Calls edges so that
// callees come before callers. Calls to names outside defs (external job
// kinds) are ignored. A cycle is ErrInvalidDependency.
func LoadOrder(defs map[string]*Definition) ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[string]int, len(defs))
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return errors.NewInvalidDependency("cyclic agent dependency at %s", name)
		}
		state[name] = visiting

		for _, callee := range defs[name].Calls {
			if _, known := defs[callee]; !known {
				continue
			}
			if err := visit(callee); err != nil {
				return err
			}
		}

		state[name] = done
		order = append(order, name)
		return nil
	}

	// Deterministic iteration keeps the order stable across runs
	for _, name := range sortedNames(defs) {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return order, nil
}

func sortedNames(defs map[string]*Definition) []string {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
