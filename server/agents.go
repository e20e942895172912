package server

import (
	"net/http"

	"github.com/oneprompt/agentd/agent"
)

// AgentSummary is the list-view shape of an agent definition
type AgentSummary struct {
	Name              string   `json:"name"`
	InputsDescription string   `json:"inputs_description,omitempty"`
	Calls             []string `json:"calls,omitempty"`
	Model             string   `json:"model"`
	Strategy          string   `json:"strategy"`
	MaxTurns          int      `json:"max_turns"`
}

func summarize(def *agent.Definition) AgentSummary {
	return AgentSummary{
		Name:              def.Name,
		InputsDescription: def.InputsDescription,
		Calls:             def.Calls,
		Model:             def.Model,
		Strategy:          def.Strategy,
		MaxTurns:          def.MaxTurns,
	}
}

// handleAgentList serves GET /api/agents in load order
func (s *Server) handleAgentList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	agents := make([]AgentSummary, 0, len(s.loadOrder))
	for _, name := range s.loadOrder {
		if def, ok := s.agents[name]; ok {
			agents = append(agents, summarize(def))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents": agents,
		"count":  len(agents),
	})
}

// RunRequest is the body of POST /api/agents/{name}/run
type RunRequest struct {
	Input string `json:"input"`
}

// handleAgentRun serves POST /api/agents/{name}/run: submit a job for the
// named agent and return its ID without waiting for completion
func (s *Server) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/agents/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "run" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	name := parts[0]

	if _, ok := s.agents[name]; !ok {
		writeError(w, http.StatusUnprocessableEntity, "Unknown agent: "+name)
		return
	}

	var req RunRequest
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &req); err != nil {
			return
		}
	}

	job, err := s.scheduler.Submit(name, req.Input)
	if err != nil {
		handleError(w, s.logger, err, "Failed to submit job")
		return
	}

	s.logger.Infow("Job submitted via API", "agent", name, "job_id", job.ID)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.ID,
		"agent":  name,
		"status": string(job.Status),
	})
}
