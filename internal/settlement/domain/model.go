package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// Settlement aggregates the delivered orders of one restaurant over one
// date period. The (restaurant_id, period_start, period_end) tuple is the
// idempotency key, enforced by a storage unique constraint.
type Settlement struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	RestaurantID      snowflake.ID `json:"restaurant_id" gorm:"column:restaurant_id;not null;uniqueIndex:ux_settlements_period,priority:1"`
	PeriodStart       time.Time    `json:"period_start" gorm:"column:period_start;not null;uniqueIndex:ux_settlements_period,priority:2"`
	PeriodEnd         time.Time    `json:"period_end" gorm:"column:period_end;not null;uniqueIndex:ux_settlements_period,priority:3"`
	OrderCount        int64        `json:"order_count" gorm:"column:order_count;not null"`
	TotalGMV          int64        `json:"total_gmv" gorm:"column:total_gmv;not null"`
	TotalCommission   int64        `json:"total_commission" gorm:"column:total_commission;not null"`
	TotalDeliveryFees int64        `json:"total_delivery_fees" gorm:"column:total_delivery_fees;not null"`
	NetPayout         int64        `json:"net_payout" gorm:"column:net_payout;not null"`
	Status            Status       `json:"status" gorm:"type:text;not null"`
	PaymentReference  *string      `json:"payment_reference,omitempty" gorm:"column:payment_reference;type:text"`
	PaidBy            *string      `json:"paid_by,omitempty" gorm:"column:paid_by;type:text"`
	PaidAt            *time.Time   `json:"paid_at,omitempty" gorm:"column:paid_at"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null"`
}

func (Settlement) TableName() string { return "settlements" }
