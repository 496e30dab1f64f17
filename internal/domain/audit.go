package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one append-only record of who changed what. Entries are
// written as a side effect of every ledger and loan mutation and are never
// read back by the components that write them.
type AuditEntry struct {
	ID         uuid.UUID `json:"id"`
	Tenant     string    `json:"tenant"`
	EntityType string    `json:"entity_type"` // account | loan | payment | member
	EntityID   uuid.UUID `json:"entity_id"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail"`
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
}
