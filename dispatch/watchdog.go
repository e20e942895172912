package dispatch

import (
	"time"

	"github.com/oneprompt/agentd/errors"
)

// watchdogScanDivisor controls how often the watchdog scans relative to
// the timeout itself
const watchdogScanDivisor = 4

// watchdog periodically fails jobs that have been blocked longer than the
// configured timeout. A dependency that never finishes (external job never
// reported, runner hung elsewhere) would otherwise park its waiters forever.
func (s *Scheduler) watchdog() {
	defer s.wg.Done()

	interval := s.config.BlockedTimeout / watchdogScanDivisor
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.expireBlocked(); err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Errorw("Watchdog scan failed", "error", err)
			}
		}
	}
}

// expireBlocked fails every blocked job older than the timeout.
// The job's index registration is removed first so a late dependency
// completion cannot re-admit a job the watchdog already failed.
func (s *Scheduler) expireBlocked() error {
	blocked, err := s.store.ListBlocked()
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-s.config.BlockedTimeout)
	for _, job := range blocked {
		if !job.UpdatedAt.Before(cutoff) {
			continue
		}

		s.mu.Lock()
		// Re-check under the dispatch mutex: the fan-out may have
		// re-admitted the job between the scan and now
		current, err := s.store.GetJob(job.ID)
		if err != nil || current.Status != JobStatusBlocked {
			s.mu.Unlock()
			continue
		}

		s.index.RemoveWaiter(job.ID)

		timeoutErr := errors.Wrapf(errors.ErrTimeout,
			"blocked for more than %s waiting on %d dependencies",
			s.config.BlockedTimeout, len(current.WaitingOn))
		s.failJobLocked(job.ID, timeoutErr, JobStatusBlocked)
		s.mu.Unlock()

		s.logger.Warnw("Watchdog expired blocked job",
			"job_id", job.ID,
			"kind", job.Kind,
			"blocked_for", time.Since(job.UpdatedAt),
			"waiting_on", len(current.WaitingOn),
		)
	}

	return nil
}
