package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type jobRecord struct {
	bun.BaseModel `bun:"table:dispatch_jobs,alias:dj"`

	ID            string          `bun:"id,pk"`
	ProviderID    string          `bun:"provider_id,notnull"`
	RemoteID      string          `bun:"remote_id"`
	CorrelationID string          `bun:"correlation_id,notnull"`
	UserID        string          `bun:"user_id"`
	State         string          `bun:"state,notnull"`
	Attempts      int             `bun:"attempts,notnull"`
	Result        *resultDocument `bun:"result,type:jsonb"`
	Error         string          `bun:"error"`
	Warnings      []string        `bun:"warnings,type:jsonb,notnull"`
	Metadata      map[string]any  `bun:"metadata,type:jsonb,notnull"`
	LastPolledAt  *time.Time      `bun:"last_polled_at,nullzero"`
	TerminalAt    *time.Time      `bun:"terminal_at,nullzero"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type resultDocument struct {
	URL      string         `json:"url,omitempty"`
	Key      string         `json:"key,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Raw      map[string]any `json:"raw,omitempty"`
}

// userSettingRecord holds a user-scoped provider key. Key values are read
// straight into credential resolution and never logged.
type userSettingRecord struct {
	bun.BaseModel `bun:"table:dispatch_user_settings,alias:dus"`

	ID          string    `bun:"id,pk"`
	UserID      string    `bun:"user_id,notnull"`
	ProviderID  string    `bun:"provider_id,notnull"`
	ProviderKey string    `bun:"provider_key,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryClaimRecord struct {
	bun.BaseModel `bun:"table:dispatch_delivery_claims,alias:ddc"`

	ID         string    `bun:"id,pk"`
	ProviderID string    `bun:"provider_id,notnull"`
	DeliveryID string    `bun:"delivery_id,notnull"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
