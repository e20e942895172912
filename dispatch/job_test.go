package dispatch

import "testing"

func TestIsValidStatus(t *testing.T) {
	for _, s := range []string{"pending", "running", "blocked", "completed", "failed"} {
		if !IsValidStatus(s) {
			t.Errorf("%s should be valid", s)
		}
	}
	for _, s := range []string{"", "queued", "paused", "PENDING"} {
		if IsValidStatus(s) {
			t.Errorf("%s should be invalid", s)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !JobStatusCompleted.IsTerminal() || !JobStatusFailed.IsTerminal() {
		t.Error("completed and failed are terminal")
	}
	if JobStatusPending.IsTerminal() || JobStatusRunning.IsTerminal() || JobStatusBlocked.IsTerminal() {
		t.Error("pending, running, and blocked are not terminal")
	}
}

func TestNewJobRequiresKind(t *testing.T) {
	if _, err := NewJob("", "input"); err == nil {
		t.Fatal("empty kind must be rejected")
	}

	job, err := NewJob("echo", "input")
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if job.ID == "" {
		t.Error("job must get an ID")
	}
	if job.Status != JobStatusPending {
		t.Errorf("new job must be pending, got %s", job.Status)
	}
}

func TestWaitingOnRoundTrip(t *testing.T) {
	// Empty wait set maps to the empty string (NULL column)
	s, err := MarshalWaitingOn(nil)
	if err != nil || s != "" {
		t.Fatalf("empty set: %q, %v", s, err)
	}
	ids, err := UnmarshalWaitingOn("")
	if err != nil || ids != nil {
		t.Fatalf("empty column: %v, %v", ids, err)
	}

	s, err = MarshalWaitingOn([]string{"b", "a", "c"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ids, err = UnmarshalWaitingOn(s)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// Declaration order must survive the round trip
	if len(ids) != 3 || ids[0] != "b" || ids[1] != "a" || ids[2] != "c" {
		t.Errorf("order lost: %v", ids)
	}
}
