package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-dispatch/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// JobStore is the durable core.JobStore. MarkTerminal runs as a conditional
// UPDATE guarded on the non-terminal states, so the first of the poll loop
// and the webhook reconciler to land wins and the loser sees applied=false.
type JobStore struct {
	db   *bun.DB
	repo repository.Repository[*jobRecord]
}

func NewJobStore(db *bun.DB) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*jobRecord](db, jobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid job repository wiring: %w", err)
		}
	}
	return &JobStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *JobStore) Create(ctx context.Context, job core.Job) (core.Job, error) {
	if s == nil || s.db == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	job.ProviderID = strings.TrimSpace(job.ProviderID)
	job.CorrelationID = strings.TrimSpace(job.CorrelationID)
	if job.ProviderID == "" {
		return core.Job{}, fmt.Errorf("sqlstore: provider id is required")
	}
	if job.CorrelationID == "" {
		return core.Job{}, fmt.Errorf("sqlstore: correlation id is required")
	}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	if job.State == "" {
		job.State = core.TaskStatePending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	var created core.Job
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		inFlight, countErr := tx.NewSelect().
			Model((*jobRecord)(nil)).
			Where("?TableAlias.provider_id = ?", job.ProviderID).
			Where("?TableAlias.correlation_id = ?", job.CorrelationID).
			Where("?TableAlias.state NOT IN (?)", bun.In(terminalStateValues())).
			Count(ctx)
		if countErr != nil {
			return countErr
		}
		if inFlight > 0 {
			return fmt.Errorf("%w: %s", core.ErrCorrelationInFlight, job.CorrelationID)
		}
		record := newJobRecord(job, now)
		if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
			return insertErr
		}
		created = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Job{}, err
	}
	return created, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (core.Job, error) {
	if s == nil || s.db == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	record := &jobRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Job{}, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
		}
		return core.Job{}, err
	}
	return record.toDomain(), nil
}

func (s *JobStore) FindByCorrelation(ctx context.Context, providerID string, correlationID string) (core.Job, error) {
	if s == nil || s.db == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	record := &jobRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", strings.TrimSpace(providerID)).
		Where("?TableAlias.correlation_id = ?", strings.TrimSpace(correlationID)).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Job{}, fmt.Errorf("%w: correlation %s", core.ErrJobNotFound, correlationID)
		}
		return core.Job{}, err
	}
	return record.toDomain(), nil
}

// UpdateProgress merges a narrow progress update. The write touches only the
// progress columns and carries the same non-terminal guard as MarkTerminal,
// so a terminal write committing between the read and the write can never be
// overwritten with stale state.
func (s *JobStore) UpdateProgress(ctx context.Context, id string, progress core.JobProgress) (core.Job, error) {
	if s == nil || s.db == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	var updated core.Job
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &jobRecord{}
		selectErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", strings.TrimSpace(id)).
			Limit(1).
			Scan(ctx)
		if selectErr != nil {
			if selectErr == sql.ErrNoRows {
				return fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
			}
			return selectErr
		}
		job := record.toDomain()
		now := time.Now().UTC()
		if job.State.Terminal() {
			// Bookkeeping only; terminal rows keep state, result, and error.
			if _, updateErr := tx.NewUpdate().
				Model((*jobRecord)(nil)).
				Set("updated_at = ?", now).
				Where("id = ?", record.ID).
				Exec(ctx); updateErr != nil {
				return updateErr
			}
			job.UpdatedAt = now
			updated = job
			return nil
		}

		core.ApplyProgress(&job, progress, now)
		next := newJobRecord(job, now)
		res, updateErr := tx.NewUpdate().
			Model(next).
			Column("state", "remote_id", "attempts", "warnings", "metadata", "last_polled_at", "updated_at").
			Where("id = ?", next.ID).
			Where("state NOT IN (?)", bun.In(terminalStateValues())).
			Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		affected, affectedErr := res.RowsAffected()
		if affectedErr != nil {
			return affectedErr
		}
		if affected == 0 {
			// A terminal write landed between the read and the write; the
			// progress snapshot is stale, return the winner's record.
			current := &jobRecord{}
			rereadErr := tx.NewSelect().
				Model(current).
				Where("?TableAlias.id = ?", next.ID).
				Limit(1).
				Scan(ctx)
			if rereadErr != nil {
				return rereadErr
			}
			updated = current.toDomain()
			return nil
		}
		updated = next.toDomain()
		return nil
	})
	if err != nil {
		return core.Job{}, err
	}
	return updated, nil
}

func (s *JobStore) MarkTerminal(
	ctx context.Context,
	id string,
	state core.TaskState,
	result *core.CanonicalResult,
	errText string,
) (core.Job, bool, error) {
	if s == nil || s.db == nil {
		return core.Job{}, false, fmt.Errorf("sqlstore: job store is not configured")
	}
	if !state.Terminal() {
		return core.Job{}, false, fmt.Errorf("%w: %s is not terminal", core.ErrInvalidTaskStateTransition, state)
	}
	now := time.Now().UTC()

	update := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("state = ?", string(state)).
		Set("terminal_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", strings.TrimSpace(id)).
		Where("state NOT IN (?)", bun.In(terminalStateValues()))
	if result != nil {
		update = update.Set("result = ?", newResultDocument(*result))
	}
	if strings.TrimSpace(errText) != "" {
		update = update.Set("error = ?", strings.TrimSpace(errText))
	}

	res, err := update.Exec(ctx)
	if err != nil {
		return core.Job{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.Job{}, false, err
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return core.Job{}, false, err
	}
	return job, affected > 0, nil
}

func terminalStateValues() []string {
	return []string{
		string(core.TaskStateCompleted),
		string(core.TaskStateFailed),
		string(core.TaskStateCancelled),
	}
}

var _ core.JobStore = (*JobStore)(nil)
