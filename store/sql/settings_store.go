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

// SettingsStore keeps user-scoped provider keys. ProviderKey returns
// core.ErrSettingNotFound for a missing row and core.ErrInvalidSettingQuery
// for a blank lookup; both make credential resolution fall through to the
// process default.
type SettingsStore struct {
	db   *bun.DB
	repo repository.Repository[*userSettingRecord]
}

func NewSettingsStore(db *bun.DB) (*SettingsStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*userSettingRecord](db, userSettingHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid setting repository wiring: %w", err)
		}
	}
	return &SettingsStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *SettingsStore) ProviderKey(ctx context.Context, userID string, providerID string) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("sqlstore: settings store is not configured")
	}
	userID = strings.TrimSpace(userID)
	providerID = strings.TrimSpace(providerID)
	if userID == "" || providerID == "" {
		return "", fmt.Errorf("%w: user id and provider id are required", core.ErrInvalidSettingQuery)
	}

	record := &userSettingRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.provider_id = ?", providerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("%w: user %s provider %s", core.ErrSettingNotFound, userID, providerID)
		}
		return "", err
	}
	if strings.TrimSpace(record.ProviderKey) == "" {
		return "", fmt.Errorf("%w: user %s provider %s", core.ErrSettingNotFound, userID, providerID)
	}
	return record.ProviderKey, nil
}

// SetProviderKey upserts the key for a user/provider pair.
func (s *SettingsStore) SetProviderKey(ctx context.Context, userID string, providerID string, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: settings store is not configured")
	}
	userID = strings.TrimSpace(userID)
	providerID = strings.TrimSpace(providerID)
	if userID == "" || providerID == "" {
		return fmt.Errorf("%w: user id and provider id are required", core.ErrInvalidSettingQuery)
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("sqlstore: provider key is required")
	}

	now := time.Now().UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &userSettingRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.user_id = ?", userID).
			Where("?TableAlias.provider_id = ?", providerID).
			Limit(1).
			Scan(ctx)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if err == sql.ErrNoRows {
			record := &userSettingRecord{
				ID:          uuid.NewString(),
				UserID:      userID,
				ProviderID:  providerID,
				ProviderKey: key,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
			return insertErr
		}
		existing.ProviderKey = key
		existing.UpdatedAt = now
		_, updateErr := tx.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx)
		return updateErr
	})
}

var _ core.SettingsStore = (*SettingsStore)(nil)
