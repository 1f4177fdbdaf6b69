package sqlstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// CreateSchema creates the dispatch tables and indexes if they do not exist.
// Deployments with their own migration tooling can skip this and manage the
// same shapes there.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	if db == nil {
		return fmt.Errorf("sqlstore: bun db is required")
	}

	models := []any{
		(*jobRecord)(nil),
		(*userSettingRecord)(nil),
		(*deliveryClaimRecord)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: create table for %T: %w", model, err)
		}
	}

	if _, err := db.NewCreateIndex().
		Model((*jobRecord)(nil)).
		Index("idx_dispatch_jobs_correlation").
		Column("provider_id", "correlation_id").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: create job correlation index: %w", err)
	}

	if _, err := db.NewCreateIndex().
		Model((*userSettingRecord)(nil)).
		Index("uq_dispatch_user_settings_scope").
		Unique().
		Column("user_id", "provider_id").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: create setting scope index: %w", err)
	}

	if _, err := db.NewCreateIndex().
		Model((*deliveryClaimRecord)(nil)).
		Index("uq_dispatch_delivery_claims_key").
		Unique().
		Column("provider_id", "delivery_id").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: create delivery claim index: %w", err)
	}

	return nil
}
