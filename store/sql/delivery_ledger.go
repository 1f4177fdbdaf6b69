package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-dispatch/webhooks"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DeliveryLedger is the durable webhook dedupe table. Claim relies on the
// unique (provider_id, delivery_id) index: the insert that lands first owns
// the delivery, duplicates get false.
type DeliveryLedger struct {
	db *bun.DB
}

func NewDeliveryLedger(db *bun.DB) (*DeliveryLedger, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &DeliveryLedger{db: db}, nil
}

func (l *DeliveryLedger) Claim(ctx context.Context, providerID string, deliveryID string, lease time.Duration) (bool, error) {
	if l == nil || l.db == nil {
		return false, fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return false, fmt.Errorf("sqlstore: provider id and delivery id are required")
	}
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	now := time.Now().UTC()

	claimed := false
	err := l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Expired claims release the key so redeliveries after the lease
		// window are processed again.
		if _, deleteErr := tx.NewDelete().
			Model((*deliveryClaimRecord)(nil)).
			Where("provider_id = ?", providerID).
			Where("delivery_id = ?", deliveryID).
			Where("expires_at <= ?", now).
			Exec(ctx); deleteErr != nil {
			return deleteErr
		}
		record := &deliveryClaimRecord{
			ID:         uuid.NewString(),
			ProviderID: providerID,
			DeliveryID: deliveryID,
			ExpiresAt:  now.Add(lease),
			CreatedAt:  now,
		}
		if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
			if isUniqueViolation(insertErr) {
				return nil
			}
			return insertErr
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// Release drops a claim whose processing failed, so the next redelivery of
// the same payload claims it again.
func (l *DeliveryLedger) Release(ctx context.Context, providerID string, deliveryID string) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return fmt.Errorf("sqlstore: provider id and delivery id are required")
	}
	_, err := l.db.NewDelete().
		Model((*deliveryClaimRecord)(nil)).
		Where("provider_id = ?", providerID).
		Where("delivery_id = ?", deliveryID).
		Exec(ctx)
	return err
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ webhooks.DeliveryLedger = (*DeliveryLedger)(nil)
