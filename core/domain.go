package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidTaskStateTransition = errors.New("core: invalid task state transition")
	ErrJobNotFound                = errors.New("core: job not found")
	ErrJobTerminal                = errors.New("core: job already terminal")
	ErrCorrelationInFlight        = errors.New("core: correlation id already in flight")
	ErrSettingNotFound            = errors.New("core: provider setting not found")
	ErrInvalidSettingQuery        = errors.New("core: invalid provider setting query")
)

// TaskState is the canonical lifecycle state of a remote unit of work after
// mapping the provider's raw status vocabulary.
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCancelled TaskState = "cancelled"
)

func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	}
	return false
}

func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateRunning, TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	}
	return false
}

func taskStateTransitionAllowed(current, next TaskState) bool {
	allowed := map[TaskState]map[TaskState]struct{}{
		TaskStatePending: {
			TaskStateRunning:   {},
			TaskStateCompleted: {},
			TaskStateFailed:    {},
			TaskStateCancelled: {},
		},
		TaskStateRunning: {
			TaskStateCompleted: {},
			TaskStateFailed:    {},
			TaskStateCancelled: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// Job tracks one remote unit of asynchronous work from submission to a
// terminal state. RemoteID is the provider's identifier; CorrelationID is the
// caller-assigned identifier embedded in the outgoing request so inbound
// callbacks can be matched back without knowing provider-internal ids.
type Job struct {
	ID            string
	ProviderID    string
	RemoteID      string
	CorrelationID string
	UserID        string
	State         TaskState
	Attempts      int
	Result        *CanonicalResult
	Error         string
	Warnings      []string
	Metadata      map[string]any
	LastPolledAt  *time.Time
	TerminalAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TransitionTo applies the monotonic state rule: terminal states are sinks
// and repeat writes of the current state only bump UpdatedAt.
func (j *Job) TransitionTo(state TaskState, now time.Time) error {
	if j == nil {
		return nil
	}
	if j.State == state {
		j.UpdatedAt = now
		return nil
	}
	if j.State.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrJobTerminal, j.State, state)
	}
	if !taskStateTransitionAllowed(j.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTaskStateTransition, j.State, state)
	}
	j.State = state
	j.UpdatedAt = now
	if state.Terminal() {
		terminal := now
		j.TerminalAt = &terminal
	}
	return nil
}

func (j *Job) AddWarning(warning string) {
	if j == nil {
		return
	}
	warning = strings.TrimSpace(warning)
	if warning == "" {
		return
	}
	for _, existing := range j.Warnings {
		if existing == warning {
			return
		}
	}
	j.Warnings = append(j.Warnings, warning)
}

// CanonicalResult is the normalized success payload of a completed job.
// Produced once per job and immutable after creation.
type CanonicalResult struct {
	URL      string
	Key      string
	Metadata map[string]any
	Raw      map[string]any
}

func (r CanonicalResult) Empty() bool {
	return strings.TrimSpace(r.URL) == "" && strings.TrimSpace(r.Key) == ""
}

func (r CanonicalResult) Clone() CanonicalResult {
	return CanonicalResult{
		URL:      r.URL,
		Key:      r.Key,
		Metadata: copyAnyMap(r.Metadata),
		Raw:      copyAnyMap(r.Raw),
	}
}

// StatusMapping translates a provider's raw status vocabulary into canonical
// task states. Built once at adapter construction, read-only thereafter.
type StatusMapping struct {
	states map[string]TaskState
}

func NewStatusMapping(raw map[string]TaskState) (StatusMapping, error) {
	states := make(map[string]TaskState, len(raw))
	for status, state := range raw {
		status = strings.ToLower(strings.TrimSpace(status))
		if status == "" {
			return StatusMapping{}, fmt.Errorf("core: status mapping key is empty")
		}
		if !state.Valid() {
			return StatusMapping{}, fmt.Errorf("core: status mapping %q targets unknown state %q", status, state)
		}
		states[status] = state
	}
	return StatusMapping{states: states}, nil
}

// Map resolves a raw provider status. Unknown vocabulary maps to running so a
// provider adding a new in-progress status cannot wedge or kill a job; the
// second return reports whether the status was recognized.
func (m StatusMapping) Map(rawStatus string) (TaskState, bool) {
	status := strings.ToLower(strings.TrimSpace(rawStatus))
	if status == "" {
		return TaskStateRunning, false
	}
	state, ok := m.states[status]
	if !ok {
		return TaskStateRunning, false
	}
	return state, true
}

func (m StatusMapping) Len() int {
	return len(m.states)
}

// CredentialSource records where a resolved credential came from.
type CredentialSource string

const (
	CredentialSourceUser    CredentialSource = "user"
	CredentialSourceDefault CredentialSource = "default"
)

// Credential is a resolved provider secret. It is owned by the resolver call
// that produced it and must never be persisted or logged; String and GoString
// redact the value so accidental formatting cannot leak it.
type Credential struct {
	Value  string
	Source CredentialSource
}

func (c Credential) String() string {
	return fmt.Sprintf("Credential{source=%s value=[redacted]}", c.Source)
}

func (c Credential) GoString() string {
	return c.String()
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func mergeAnyMap(left map[string]any, right map[string]any) map[string]any {
	out := copyAnyMap(left)
	for key, value := range right {
		out[key] = value
	}
	return out
}
