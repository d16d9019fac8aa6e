package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusConfirmed       Status = "confirmed"
	StatusPreparing       Status = "preparing"
	StatusOutForDelivery  Status = "out_for_delivery"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
)

const CancelReasonPaymentTimeout = "payment_timeout"

// legalTransitions is the only source of truth for edges at the application
// layer. The storage layer enforces the same table with a trigger so that
// concurrent callers cannot interleave an illegal edge past this check.
var legalTransitions = map[Status][]Status{
	StatusAwaitingPayment: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:       {StatusPreparing, StatusCancelled},
	StatusPreparing:       {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery:  {StatusDelivered, StatusCancelled},
	StatusDelivered:       {},
	StatusCancelled:       {},
}

func (s Status) Valid() bool {
	_, ok := legalTransitions[s]
	return ok
}

func (s Status) Terminal() bool {
	targets, ok := legalTransitions[s]
	return ok && len(targets) == 0
}

func CanTransition(from, to Status) bool {
	for _, target := range legalTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Order fields copied from the restaurant or menu at creation time
// (delivery fee, commission rate and amount, line-item prices) are frozen
// snapshots. Later catalog changes never alter an existing order.
type Order struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderNumber      string       `json:"order_number" gorm:"column:order_number;type:text;not null;uniqueIndex:ux_orders_order_number"`
	CustomerID       snowflake.ID `json:"customer_id" gorm:"column:customer_id;not null;index"`
	RestaurantID     snowflake.ID `json:"restaurant_id" gorm:"column:restaurant_id;not null;index"`
	Status           Status       `json:"status" gorm:"type:text;not null"`
	Subtotal         int64        `json:"subtotal" gorm:"not null"`
	DeliveryFee      int64        `json:"delivery_fee" gorm:"column:delivery_fee;not null"`
	CommissionRate   float64      `json:"commission_rate" gorm:"column:commission_rate;not null"`
	CommissionAmount int64        `json:"commission_amount" gorm:"column:commission_amount;not null"`
	Total            int64        `json:"total" gorm:"not null"`
	DeliveryAddress  string       `json:"delivery_address" gorm:"column:delivery_address;type:text;not null"`
	ContactName      string       `json:"contact_name" gorm:"column:contact_name;type:text;not null"`
	ContactPhone     string       `json:"contact_phone" gorm:"column:contact_phone;type:text;not null"`
	Note             *string      `json:"note,omitempty" gorm:"type:text"`
	CancelReason     *string      `json:"cancel_reason,omitempty" gorm:"column:cancel_reason;type:text"`
	ConfirmedAt      *time.Time   `json:"confirmed_at,omitempty" gorm:"column:confirmed_at"`
	PreparingAt      *time.Time   `json:"preparing_at,omitempty" gorm:"column:preparing_at"`
	OutForDeliveryAt *time.Time   `json:"out_for_delivery_at,omitempty" gorm:"column:out_for_delivery_at"`
	DeliveredAt      *time.Time   `json:"delivered_at,omitempty" gorm:"column:delivered_at"`
	CancelledAt      *time.Time   `json:"cancelled_at,omitempty" gorm:"column:cancelled_at"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null;index"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null"`

	LineItems []OrderLineItem `json:"line_items,omitempty" gorm:"-"`
}

func (Order) TableName() string { return "orders" }

type OrderLineItem struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID    snowflake.ID `json:"order_id" gorm:"column:order_id;not null;index"`
	MenuItemID snowflake.ID `json:"menu_item_id" gorm:"column:menu_item_id;not null"`
	Name       string       `json:"name" gorm:"type:text;not null"`
	UnitPrice  int64        `json:"unit_price" gorm:"column:unit_price;not null"`
	Quantity   int          `json:"quantity" gorm:"not null"`
	Subtotal   int64        `json:"subtotal" gorm:"not null"`
	Note       *string      `json:"note,omitempty" gorm:"type:text"`
}

func (OrderLineItem) TableName() string { return "order_line_items" }
