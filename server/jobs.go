package server

import (
	"net/http"

	"github.com/oneprompt/agentd/dispatch"
	"github.com/oneprompt/agentd/version"
)

const (
	defaultJobLimit = 50
	maxJobLimit     = 200
)

// handleJobList serves GET /api/jobs with optional ?status= and ?limit=
func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	var status *dispatch.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		if !dispatch.IsValidStatus(raw) {
			writeError(w, http.StatusBadRequest, "Invalid status: "+raw)
			return
		}
		st := dispatch.JobStatus(raw)
		status = &st
	}
	limit := parseIntQueryParam(r, "limit", defaultJobLimit, 1, maxJobLimit)

	jobs, err := s.scheduler.Store().ListJobs(status, limit)
	if err != nil {
		handleError(w, s.logger, err, "Failed to list jobs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleJob serves GET /api/jobs/{id} and GET /api/jobs/{id}/dependencies
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	parts := extractPathParts(r.URL.Path, "/api/jobs/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		s.serveJob(w, parts[0])
	case len(parts) == 2 && parts[0] != "" && parts[1] == "dependencies":
		s.serveJobDependencies(w, parts[0])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) serveJob(w http.ResponseWriter, jobID string) {
	job, err := s.scheduler.Store().GetJob(jobID)
	if err != nil {
		handleError(w, s.logger, err, "Failed to get job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// DependencySlot is one entry of a blocked job's wait set, in declaration
// order, with the current state of the dependency behind it
type DependencySlot struct {
	JobID  string `json:"job_id"`
	Kind   string `json:"kind,omitempty"`
	Status string `json:"status,omitempty"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) serveJobDependencies(w http.ResponseWriter, jobID string) {
	job, err := s.scheduler.Store().GetJob(jobID)
	if err != nil {
		handleError(w, s.logger, err, "Failed to get job")
		return
	}

	slots := make([]DependencySlot, 0, len(job.WaitingOn))
	for _, depID := range job.WaitingOn {
		slot := DependencySlot{JobID: depID}
		dep, err := s.scheduler.Store().GetJob(depID)
		if err == nil {
			slot.Kind = dep.Kind
			slot.Status = string(dep.Status)
			slot.Result = dep.Result
			slot.Error = dep.Error
		}
		slots = append(slots, slot)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":       job.ID,
		"status":       string(job.Status),
		"dependencies": slots,
	})
}

// handleVersion serves GET /api/version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, version.Get())
}
