package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryJobStore is the in-process JobStore used by tests and single-node
// deployments. All writes happen under one mutex, which makes MarkTerminal a
// true compare-and-set: the first caller to reach a terminal state wins and
// every later terminal write is reported as not applied.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]Job
	Now  func() time.Time
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: map[string]Job{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job Job) (Job, error) {
	if s == nil {
		return Job{}, fmt.Errorf("core: memory job store is nil")
	}
	job.ProviderID = strings.TrimSpace(job.ProviderID)
	job.CorrelationID = strings.TrimSpace(job.CorrelationID)
	if job.ProviderID == "" {
		return Job{}, fmt.Errorf("core: provider id is required")
	}
	if job.CorrelationID == "" {
		return Job{}, fmt.Errorf("core: correlation id is required")
	}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	if job.State == "" {
		job.State = TaskStatePending
	}
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.ProviderID == job.ProviderID &&
			existing.CorrelationID == job.CorrelationID &&
			!existing.State.Terminal() {
			return Job{}, fmt.Errorf("%w: %s", ErrCorrelationInFlight, job.CorrelationID)
		}
	}
	s.jobs[job.ID] = cloneJob(job)
	return cloneJob(job), nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (Job, error) {
	if s == nil {
		return Job{}, fmt.Errorf("core: memory job store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return cloneJob(job), nil
}

func (s *MemoryJobStore) FindByCorrelation(_ context.Context, providerID string, correlationID string) (Job, error) {
	if s == nil {
		return Job{}, fmt.Errorf("core: memory job store is nil")
	}
	providerID = strings.TrimSpace(providerID)
	correlationID = strings.TrimSpace(correlationID)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ProviderID == providerID && job.CorrelationID == correlationID {
			return cloneJob(job), nil
		}
	}
	return Job{}, fmt.Errorf("%w: correlation %s", ErrJobNotFound, correlationID)
}

func (s *MemoryJobStore) UpdateProgress(_ context.Context, id string, progress JobProgress) (Job, error) {
	if s == nil {
		return Job{}, fmt.Errorf("core: memory job store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	now := s.now()
	if job.State.Terminal() {
		// Terminal jobs only accept bookkeeping writes from late observers.
		job.UpdatedAt = now
		s.jobs[job.ID] = job
		return cloneJob(job), nil
	}
	ApplyProgress(&job, progress, now)
	s.jobs[job.ID] = job
	return cloneJob(job), nil
}

func (s *MemoryJobStore) MarkTerminal(
	_ context.Context,
	id string,
	state TaskState,
	result *CanonicalResult,
	errText string,
) (Job, bool, error) {
	if s == nil {
		return Job{}, false, fmt.Errorf("core: memory job store is nil")
	}
	if !state.Terminal() {
		return Job{}, false, fmt.Errorf("%w: %s is not terminal", ErrInvalidTaskStateTransition, state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return Job{}, false, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.State.Terminal() {
		return cloneJob(job), false, nil
	}
	now := s.now()
	if err := job.TransitionTo(state, now); err != nil {
		return Job{}, false, err
	}
	if result != nil {
		cloned := result.Clone()
		job.Result = &cloned
	}
	if strings.TrimSpace(errText) != "" {
		job.Error = strings.TrimSpace(errText)
	}
	s.jobs[job.ID] = job
	return cloneJob(job), true, nil
}

func (s *MemoryJobStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// ApplyProgress merges a narrow progress update into a non-terminal job.
// Terminal target states are ignored here; terminal writes go through
// MarkTerminal so the compare-and-set guard stays the only terminal path.
func ApplyProgress(job *Job, progress JobProgress, now time.Time) {
	if progress.State != "" && progress.State != job.State && !progress.State.Terminal() {
		if taskStateTransitionAllowed(job.State, progress.State) {
			job.State = progress.State
		}
	}
	if strings.TrimSpace(progress.RemoteID) != "" {
		job.RemoteID = strings.TrimSpace(progress.RemoteID)
	}
	if progress.Attempts != nil {
		job.Attempts = *progress.Attempts
	}
	if progress.LastPolledAt != nil {
		polled := progress.LastPolledAt.UTC()
		job.LastPolledAt = &polled
	}
	for _, warning := range progress.Warnings {
		job.AddWarning(warning)
	}
	if len(progress.Metadata) > 0 {
		job.Metadata = mergeAnyMap(job.Metadata, progress.Metadata)
	}
	job.UpdatedAt = now
}

func cloneJob(job Job) Job {
	out := job
	out.Warnings = append([]string(nil), job.Warnings...)
	out.Metadata = copyAnyMap(job.Metadata)
	if job.Result != nil {
		cloned := job.Result.Clone()
		out.Result = &cloned
	}
	if job.LastPolledAt != nil {
		polled := *job.LastPolledAt
		out.LastPolledAt = &polled
	}
	if job.TerminalAt != nil {
		terminal := *job.TerminalAt
		out.TerminalAt = &terminal
	}
	return out
}
