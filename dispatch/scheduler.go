package dispatch

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/oneprompt/agentd/db"
	"github.com/oneprompt/agentd/errors"
)

const (
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100

	// stopTimeout bounds how long Stop waits for workers to drain
	stopTimeout = 30 * time.Second
)

// SchedulerConfig contains configuration for the scheduler
type SchedulerConfig struct {
	// Workers is the number of concurrent job workers
	Workers int `json:"workers"`

	// PollInterval is how often an idle worker re-checks for runnable jobs.
	// Workers are also woken immediately when a job becomes runnable.
	PollInterval time.Duration `json:"poll_interval"`

	// BlockedTimeout is how long a job may stay blocked before the watchdog
	// forces it to failed. Zero disables the watchdog.
	BlockedTimeout time.Duration `json:"blocked_timeout"`

	// DispatchRate caps job hand-offs to workers per second. Zero disables
	// the gate.
	DispatchRate float64 `json:"dispatch_rate"`
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:      4,
		PollInterval: 250 * time.Millisecond,
	}
}

// Scheduler runs jobs on a bounded worker pool and manages suspension.
//
// A blocked job holds no worker slot: the worker returns Suspend, the job
// is parked in the store and the index, and the worker moves on. When the
// last dependency finishes, the fan-out re-admits the job to pending.
//
// The dispatch mutex (mu) serializes wait registration against completion
// fan-out. A dependency that finishes while a suspension is being
// registered is either observed as terminal by the registration (and not
// waited on) or its fan-out runs after the registration and finds the
// waiter. There is no window in which a completion can be missed.
type Scheduler struct {
	store    *Store
	index    *DependencyIndex
	registry *RunnerRegistry
	config   SchedulerConfig
	limiter  *rate.Limiter
	logger   *zap.SugaredLogger

	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// wake nudges idle workers when a job becomes runnable
	wake chan struct{}

	// mu is the dispatch mutex: held for suspension registration,
	// terminal transitions, and completion fan-out
	mu sync.Mutex

	subMu       sync.RWMutex
	subscribers []chan *Job
}

// NewScheduler creates a scheduler with an empty runner registry.
// Callers must register runners before calling Start().
func NewScheduler(database *sql.DB, cfg SchedulerConfig, logger *zap.SugaredLogger) *Scheduler {
	return NewSchedulerWithContext(context.Background(), database, cfg, logger, NewRunnerRegistry())
}

// NewSchedulerWithContext creates a scheduler with a custom parent context
// and runner registry. Cancellation of the parent context also cancels the
// workers.
func NewSchedulerWithContext(ctx context.Context, database *sql.DB, cfg SchedulerConfig, logger *zap.SugaredLogger, registry *RunnerRegistry) *Scheduler {
	workerCtx, cancel := context.WithCancel(ctx)

	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}

	var limiter *rate.Limiter
	if cfg.DispatchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.DispatchRate), 1)
	}

	return &Scheduler{
		store:     NewStore(database),
		index:     NewDependencyIndex(),
		registry:  registry,
		config:    cfg,
		limiter:   limiter,
		logger:    logger.Named("dispatch"),
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
	}
}

// Registry returns the runner registry for registering job runners.
// Register runners before calling Start():
//
//	sched := dispatch.NewScheduler(db, cfg, logger)
//	sched.Registry().Register(myRunner)
//	sched.Start()
func (s *Scheduler) Registry() *RunnerRegistry {
	return s.registry
}

// Store returns the underlying job store (useful for read-only queries)
func (s *Scheduler) Store() *Store {
	return s.store
}

// Start recovers state from the store and begins processing jobs
func (s *Scheduler) Start() error {
	// Recreate worker context if a previous Stop() cancelled it
	select {
	case <-s.ctx.Done():
		s.ctx, s.cancel = context.WithCancel(s.parentCtx)
		s.logger.Infow("Recreated worker context after previous shutdown")
	default:
	}

	if err := s.recover(); err != nil {
		return errors.Wrap(err, "failed to recover dispatch state")
	}

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	if s.config.BlockedTimeout > 0 {
		s.wg.Add(1)
		go s.watchdog()
	}

	s.logger.Infow("Scheduler started",
		"workers", s.config.Workers,
		"poll_interval", s.config.PollInterval,
		"blocked_timeout", s.config.BlockedTimeout,
	)
	return nil
}

// recover re-queues jobs orphaned in running by a previous crash and
// rebuilds the dependency index from blocked rows. Blocked jobs whose
// dependencies all finished while the process was down are re-admitted.
func (s *Scheduler) recover() error {
	requeued, err := s.store.RequeueOrphans()
	if err != nil {
		return err
	}
	if requeued > 0 {
		s.logger.Infow("Re-queued orphaned jobs from previous run", "count", requeued)
	}

	blocked, err := s.store.ListBlocked()
	if err != nil {
		return err
	}

	runnable, err := s.index.Rebuild(blocked, func(depID string) (bool, error) {
		dep, err := s.store.GetJob(depID)
		if errors.IsNotFound(err) {
			// Dependency cleaned up after finishing; treat as done
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return dep.Status.IsTerminal(), nil
	})
	if err != nil {
		return err
	}

	for _, id := range runnable {
		if err := s.store.MarkPending(id); err != nil {
			return errors.Wrapf(err, "re-admitting satisfied blocked job %s", id)
		}
	}
	if len(blocked) > 0 {
		s.logger.Infow("Rebuilt dependency index",
			"blocked", len(blocked),
			"re_admitted", len(runnable),
		)
	}

	return nil
}

// Stop gracefully stops the scheduler.
// Waits up to stopTimeout for in-flight jobs to finish their current turn.
func (s *Scheduler) Stop() {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("Scheduler stopped, all workers exited cleanly")
	case <-time.After(stopTimeout):
		s.logger.Warnw("Scheduler stop timeout, workers may still be running", "timeout", stopTimeout)
	}
}

// Submit creates a new pending job and wakes a worker
func (s *Scheduler) Submit(kind string, input string) (*Job, error) {
	if !s.registry.Has(kind) {
		return nil, errors.NewInvalidDependency("no runner registered for kind %s", kind)
	}

	job, err := NewJob(kind, input)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateJob(job); err != nil {
		return nil, errors.Wrapf(err, "failed to submit %s job", kind)
	}

	s.notifySubscribers(job)
	s.wakeWorkers()
	return job, nil
}

// WaitForJob blocks until the job reaches a terminal state or the context
// is cancelled, then returns the final record
func (s *Scheduler) WaitForJob(ctx context.Context, id string) (*Job, error) {
	updates := s.Subscribe()
	defer s.Unsubscribe(updates)

	// Check current state after subscribing so a transition between the
	// two cannot be missed
	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "waiting for job")
		case update := <-updates:
			if update.ID == id && update.Status.IsTerminal() {
				return update, nil
			}
		}
	}
}

// worker pulls runnable jobs until the scheduler context is cancelled
func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}

		// Drain the runnable set before going back to sleep
		for {
			worked, err := s.processNext()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if db.IsDatabaseClosed(err) {
					return
				}
				s.logger.Errorw("Worker error processing job",
					"worker_id", id,
					"error", err,
				)
				break
			}
			if !worked {
				break
			}
		}
	}
}

// processNext claims and runs the oldest pending job.
// Returns false when no job was available.
func (s *Scheduler) processNext() (bool, error) {
	job, err := s.store.NextPending()
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	// Rate-gate before claiming so a shutdown mid-wait leaves the job
	// pending for the next worker or the next process
	if s.limiter != nil {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return false, nil
		}
	}

	if err := s.store.MarkRunning(job.ID); err != nil {
		if errors.IsConflict(err) {
			// Another worker claimed it first
			return true, nil
		}
		if errors.IsNotFound(err) {
			return true, nil
		}
		return false, err
	}
	job.Status = JobStatusRunning

	s.notifySubscribers(job)
	s.runJob(job)
	return true, nil
}

// runJob executes one turn of a claimed job and applies the outcome
func (s *Scheduler) runJob(job *Job) {
	runner := s.registry.Get(job.Kind)
	if runner == nil {
		s.failJob(job.ID, errors.Newf("no runner registered for kind %s", job.Kind), JobStatusRunning)
		return
	}

	turn := &Turn{Job: job}
	if len(job.WaitingOn) > 0 {
		// Resumed turn: assemble dependency results in declaration order
		resumed, err := aggregateResults(s.store, job.WaitingOn)
		if err != nil {
			s.failJob(job.ID, errors.Wrap(err, "failed to aggregate dependency results"), JobStatusRunning)
			return
		}
		turn.Resumed = resumed
	}

	outcome, err := runner.Run(s.ctx, turn)
	if err != nil {
		select {
		case <-s.ctx.Done():
			// Cancelled mid-run: the orphan recovery on next start re-queues it
			s.logger.Warnw("Job cancelled during execution", "job_id", job.ID)
			return
		default:
		}
		s.failJob(job.ID, err, JobStatusRunning)
		return
	}

	switch o := outcome.(type) {
	case Done:
		s.completeJob(job.ID, o.Result)
	case Fail:
		err := o.Err
		if err == nil {
			err = errors.New("runner reported failure without error")
		}
		s.failJob(job.ID, err, JobStatusRunning)
	case Suspend:
		s.suspendJob(job, o.Deps)
	default:
		s.failJob(job.ID, errors.AssertionFailedf("runner returned unknown outcome %T", outcome), JobStatusRunning)
	}
}

// completeJob records a result and fans out to waiters.
// The fan-out happens before the worker returns to the poll loop, so a
// dependent never stays blocked behind a free worker.
func (s *Scheduler) completeJob(id string, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.MarkCompleted(id, result); err != nil {
		s.logger.Errorw("Failed to complete job", "job_id", id, "error", err)
		return
	}

	s.notifyByID(id)
	s.fanOutLocked(id)
}

// failJob records a failure and fans out to waiters. Failure propagates the
// same way completion does: dependents resume and see the failed result.
func (s *Scheduler) failJob(id string, jobErr error, from JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failJobLocked(id, jobErr, from)
}

func (s *Scheduler) failJobLocked(id string, jobErr error, from JobStatus) {
	if err := s.store.MarkFailed(id, jobErr.Error(), from); err != nil {
		s.logger.Errorw("Failed to mark job failed", "job_id", id, "error", err)
		return
	}

	s.logger.Warnw("Job failed", "job_id", id, "error", jobErr)
	s.notifyByID(id)
	s.fanOutLocked(id)
}

// suspendJob parks a running job on its declared dependencies.
//
// Dependencies referencing unknown jobs fail the suspending job with
// ErrInvalidDependency; spec dependencies are created as new pending jobs.
// If every dependency is already terminal the job passes straight through
// blocked back to pending.
func (s *Scheduler) suspendJob(job *Job, deps []Dependency) {
	// Resolve dependencies outside the dispatch mutex: creation and
	// existence checks do not race the fan-out
	waitingOn := make([]string, 0, len(deps))
	for _, dep := range deps {
		switch {
		case dep.JobID != "":
			if _, err := s.store.GetJob(dep.JobID); err != nil {
				if errors.IsNotFound(err) {
					s.failJob(job.ID, errors.NewInvalidDependency("dependency %s does not exist", dep.JobID), JobStatusRunning)
					return
				}
				s.failJob(job.ID, err, JobStatusRunning)
				return
			}
			waitingOn = append(waitingOn, dep.JobID)

		case dep.Kind != "":
			if !s.registry.Has(dep.Kind) {
				s.failJob(job.ID, errors.NewInvalidDependency("no runner registered for kind %s", dep.Kind), JobStatusRunning)
				return
			}
			child, err := NewJob(dep.Kind, dep.Input)
			if err != nil {
				s.failJob(job.ID, err, JobStatusRunning)
				return
			}
			if err := s.store.CreateJob(child); err != nil {
				s.failJob(job.ID, errors.Wrap(err, "failed to create dependency job"), JobStatusRunning)
				return
			}
			s.notifySubscribers(child)
			waitingOn = append(waitingOn, child.ID)

		default:
			s.failJob(job.ID, errors.NewInvalidDependency("dependency has neither job_id nor kind"), JobStatusRunning)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.MarkBlocked(job.ID, waitingOn); err != nil {
		s.logger.Errorw("Failed to mark job blocked", "job_id", job.ID, "error", err)
		return
	}
	s.notifyByID(job.ID)

	// Filter to dependencies that are still outstanding. The dispatch
	// mutex is held, so a dependency observed as non-terminal here cannot
	// fan out before the registration below lands.
	var open []string
	for _, depID := range waitingOn {
		dep, err := s.store.GetJob(depID)
		if err != nil {
			if errors.IsNotFound(err) {
				// Finished and cleaned up; treat as done
				continue
			}
			s.failJobLocked(job.ID, err, JobStatusBlocked)
			return
		}
		if !dep.Status.IsTerminal() {
			open = append(open, depID)
		}
	}

	if len(open) == 0 {
		// Every dependency already finished (or the wait set was empty):
		// pass through blocked straight back to the runnable set
		if err := s.store.MarkPending(job.ID); err != nil {
			s.logger.Errorw("Failed to re-admit job with satisfied wait set", "job_id", job.ID, "error", err)
			return
		}
		s.notifyByID(job.ID)
		s.wakeWorkers()
		return
	}

	if err := s.index.RecordWait(job.ID, open); err != nil {
		// Cycle: the suspension would deadlock, fail the job instead
		s.failJobLocked(job.ID, err, JobStatusBlocked)
		return
	}

	s.wakeWorkers()
}

// fanOutLocked re-admits every blocked job whose last outstanding
// dependency just finished. Requires s.mu held.
func (s *Scheduler) fanOutLocked(depID string) {
	runnable := s.index.OnCompleted(depID)
	for _, id := range runnable {
		if err := s.store.MarkPending(id); err != nil {
			s.logger.Errorw("Failed to re-admit unblocked job", "job_id", id, "error", err)
			continue
		}
		s.notifyByID(id)
	}
	if len(runnable) > 0 {
		s.wakeWorkers()
	}
}

// wakeWorkers nudges one idle worker without blocking
func (s *Scheduler) wakeWorkers() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Subscribe returns a channel that receives job updates.
// The caller is responsible for calling Unsubscribe when done.
// The returned channel is buffered to prevent blocking the notifier.
func (s *Scheduler) Subscribe() chan *Job {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel.
// The channel is NOT closed by this method - callers should close it
// themselves after unsubscribing if needed.
func (s *Scheduler) Unsubscribe(ch chan *Job) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends a job update to all subscribers.
// Uses non-blocking send to avoid stalling if a subscriber is slow.
func (s *Scheduler) notifySubscribers(job *Job) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- job:
		default:
			// Channel full, skip
		}
	}
}

// notifyByID fetches the fresh record and notifies subscribers
func (s *Scheduler) notifyByID(id string) {
	job, err := s.store.GetJob(id)
	if err != nil {
		return
	}
	s.notifySubscribers(job)
}
