package core

import (
	"errors"
	"testing"
	"time"
)

func TestJobTransitionTo_TerminalStatesAreSinks(t *testing.T) {
	now := time.Now().UTC()
	job := Job{State: TaskStatePending}

	if err := job.TransitionTo(TaskStateRunning, now); err != nil {
		t.Fatalf("pending -> running: %v", err)
	}
	if err := job.TransitionTo(TaskStateCompleted, now); err != nil {
		t.Fatalf("running -> completed: %v", err)
	}
	if job.TerminalAt == nil {
		t.Fatalf("expected terminal timestamp")
	}

	if err := job.TransitionTo(TaskStateFailed, now); !errors.Is(err, ErrJobTerminal) {
		t.Fatalf("expected terminal sink rejection, got %v", err)
	}
	if job.State != TaskStateCompleted {
		t.Fatalf("expected state unchanged, got %s", job.State)
	}
}

func TestJobTransitionTo_RepeatIsIdempotent(t *testing.T) {
	job := Job{State: TaskStateRunning}
	before := time.Now().UTC()
	later := before.Add(time.Minute)

	if err := job.TransitionTo(TaskStateRunning, later); err != nil {
		t.Fatalf("running -> running: %v", err)
	}
	if !job.UpdatedAt.Equal(later) {
		t.Fatalf("expected updated timestamp bump")
	}
}

func TestJobTransitionTo_RejectsBackwards(t *testing.T) {
	job := Job{State: TaskStateRunning}
	if err := job.TransitionTo(TaskStatePending, time.Now().UTC()); !errors.Is(err, ErrInvalidTaskStateTransition) {
		t.Fatalf("expected backwards transition rejection, got %v", err)
	}
}

func TestJobAddWarning_Dedupes(t *testing.T) {
	job := Job{}
	job.AddWarning("billing threshold near")
	job.AddWarning("billing threshold near")
	job.AddWarning("  ")
	if len(job.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", job.Warnings)
	}
}

func TestStatusMapping_UnknownMapsToRunning(t *testing.T) {
	mapping, err := NewStatusMapping(map[string]TaskState{
		"Processing": TaskStateRunning,
		"SUCCEEDED":  TaskStateCompleted,
	})
	if err != nil {
		t.Fatalf("new status mapping: %v", err)
	}

	state, known := mapping.Map("processing")
	if !known || state != TaskStateRunning {
		t.Fatalf("expected case-insensitive match, got %s known=%v", state, known)
	}
	state, known = mapping.Map("warming_up")
	if known {
		t.Fatalf("expected unknown status to be reported unknown")
	}
	if state != TaskStateRunning {
		t.Fatalf("expected unknown status to map to running, got %s", state)
	}
}

func TestNewStatusMapping_RejectsUnknownState(t *testing.T) {
	if _, err := NewStatusMapping(map[string]TaskState{"done": TaskState("finished")}); err == nil {
		t.Fatalf("expected unknown target state rejection")
	}
	if _, err := NewStatusMapping(map[string]TaskState{" ": TaskStateRunning}); err == nil {
		t.Fatalf("expected empty status key rejection")
	}
}

func TestTaskStateTerminal(t *testing.T) {
	for state, terminal := range map[TaskState]bool{
		TaskStatePending:   false,
		TaskStateRunning:   false,
		TaskStateCompleted: true,
		TaskStateFailed:    true,
		TaskStateCancelled: true,
	} {
		if state.Terminal() != terminal {
			t.Fatalf("state %s: expected terminal=%v", state, terminal)
		}
	}
}
