package dispatch

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	agenttest "github.com/oneprompt/agentd/internal/testing"
)

// The watchdog tests share the Mission Control universe: here the range
// safety officer scrubs missions that hold too long.

func TestWatchdogScrubsAStuckHold(t *testing.T) {
	t.Log("⏱️ A mission holds for a support mission that will not land in time...")

	db := agenttest.CreateTestDB(t)
	cfg := SchedulerConfig{
		Workers:        2,
		PollInterval:   10 * time.Millisecond,
		BlockedTimeout: 500 * time.Millisecond,
	}
	sched := NewSchedulerWithContext(context.Background(), db, cfg, zaptest.NewLogger(t).Sugar(), NewRunnerRegistry())
	t.Cleanup(sched.Stop)

	sched.Registry().Register(&scriptRunner{
		kind: "sleeper",
		run: func(ctx context.Context, turn *Turn) (Outcome, error) {
			select {
			case <-time.After(10 * time.Second):
				return Done{Result: "too late"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})
	sched.Registry().Register(&scriptRunner{
		kind: "holder",
		run: func(ctx context.Context, turn *Turn) (Outcome, error) {
			if turn.Resumed == nil {
				return Suspend{Deps: []Dependency{SpawnJob("sleeper", "")}}, nil
			}
			return Done{Result: "resumed"}, nil
		},
	})
	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job, _ := sched.Submit("holder", "")

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	final, err := sched.WaitForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("waiting for holder: %v", err)
	}

	if final.Status != JobStatusFailed {
		t.Fatalf("watchdog should have failed the stuck hold, got %s", final.Status)
	}
	if !strings.Contains(final.Error, "timed out") {
		t.Errorf("timeout not named in error: %q", final.Error)
	}

	t.Log("✓ Range safety scrubbed the stuck mission instead of waiting forever")
}

func TestWatchdogLeavesFreshHoldsAlone(t *testing.T) {
	t.Log("⏱️ A short hold resolves well inside the timeout...")

	db := agenttest.CreateTestDB(t)
	cfg := SchedulerConfig{
		Workers:        2,
		PollInterval:   10 * time.Millisecond,
		BlockedTimeout: 30 * time.Second,
	}
	sched := NewSchedulerWithContext(context.Background(), db, cfg, zaptest.NewLogger(t).Sugar(), NewRunnerRegistry())
	t.Cleanup(sched.Stop)

	sched.Registry().Register(&scriptRunner{
		kind: "quick",
		run: func(ctx context.Context, turn *Turn) (Outcome, error) {
			return Done{Result: "quick"}, nil
		},
	})
	sched.Registry().Register(&scriptRunner{
		kind: "holder",
		run: func(ctx context.Context, turn *Turn) (Outcome, error) {
			if turn.Resumed == nil {
				return Suspend{Deps: []Dependency{SpawnJob("quick", "")}}, nil
			}
			return Done{Result: "resumed: " + turn.Resumed[0].Result}, nil
		},
	})
	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job, _ := sched.Submit("holder", "")
	final := waitTerminal(t, sched, job.ID)

	if final.Status != JobStatusCompleted {
		t.Fatalf("fresh hold must not be scrubbed: %s (error: %s)", final.Status, final.Error)
	}
	if final.Result != "resumed: quick" {
		t.Errorf("result = %q", final.Result)
	}
}
