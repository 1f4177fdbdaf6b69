package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryDeliveryLedger is the in-process dedupe ledger. Claims expire after
// their lease so a redelivery long after the original (provider retry days
// later) is processed again and falls through to the terminal no-op path.
type MemoryDeliveryLedger struct {
	mu     sync.Mutex
	claims map[string]time.Time
	Now    func() time.Time
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{
		claims: map[string]time.Time{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryDeliveryLedger) Claim(
	_ context.Context,
	providerID string,
	deliveryID string,
	lease time.Duration,
) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("webhooks: memory delivery ledger is nil")
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return false, fmt.Errorf("webhooks: provider id and delivery id are required")
	}
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	key := providerID + "\x00" + deliveryID
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if expiry, exists := l.claims[key]; exists && now.Before(expiry) {
		return false, nil
	}
	for existing, expiry := range l.claims {
		if now.After(expiry) {
			delete(l.claims, existing)
		}
	}
	l.claims[key] = now.Add(lease)
	return true, nil
}

// Release frees a claim so the provider's next redelivery of the same
// payload is processed instead of deduped.
func (l *MemoryDeliveryLedger) Release(_ context.Context, providerID string, deliveryID string) error {
	if l == nil {
		return fmt.Errorf("webhooks: memory delivery ledger is nil")
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return fmt.Errorf("webhooks: provider id and delivery id are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, providerID+"\x00"+deliveryID)
	return nil
}

func (l *MemoryDeliveryLedger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}
