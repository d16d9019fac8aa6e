package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Action names recorded by the ledger. Only completed, consequential actions
// are recorded; failed or rejected attempts never produce an entry.
const (
	ActionOrderCreated       = "order_created"
	ActionOrderStatusChanged = "order_status_changed"
	ActionOrderCancelled     = "order_cancelled"
	ActionSettlementCreated  = "settlement_created"
	ActionSettlementPaid     = "settlement_paid"
	ActionRestaurantUpdated  = "restaurant_updated"
	ActionMenuItemUpdated    = "menu_item_updated"
	ActionUserLoggedIn       = "user_logged_in"
	ActionExportCompleted    = "audit_export_completed"
	ActionExportSkipped      = "audit_export_skipped"
	ActionExportFailed       = "audit_export_failed"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// AuditEntry is append-only: application code never updates or deletes one.
type AuditEntry struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	Action     string            `json:"action" gorm:"type:text;not null"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:text"`
	TargetType string            `json:"target_type" gorm:"type:text;not null"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:text"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	IPAddress  *string           `json:"ip_address,omitempty" gorm:"type:text"`
	UserAgent  *string           `json:"user_agent,omitempty" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;index"`
}

func (AuditEntry) TableName() string { return "audit_entries" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
