package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateItem struct {
	ItemID   snowflake.ID `json:"item_id"`
	Quantity int          `json:"quantity"`
	Note     *string      `json:"note,omitempty"`
}

type CreateRequest struct {
	CustomerID      snowflake.ID `json:"-"`
	RestaurantID    snowflake.ID `json:"restaurant_id"`
	Items           []CreateItem `json:"items"`
	DeliveryAddress string       `json:"delivery_address"`
	ContactName     string       `json:"contact_name"`
	ContactPhone    string       `json:"contact_phone"`
	Note            *string      `json:"note,omitempty"`
}

type TransitionRequest struct {
	Status Status  `json:"status"`
	Reason *string `json:"reason,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Order, error)
	Transition(ctx context.Context, orderID snowflake.ID, req TransitionRequest) (*Order, error)
	// CancelStale cancels awaiting_payment orders older than olderThan and
	// reports how many it cancelled. Running it again immediately finds
	// nothing left to cancel.
	CancelStale(ctx context.Context, olderThan time.Duration) (int, error)
	Get(ctx context.Context, id snowflake.ID) (*Order, error)
	ListByCustomer(ctx context.Context, customerID snowflake.ID, limit int) ([]Order, error)
	ListByRestaurant(ctx context.Context, restaurantID snowflake.ID, limit int) ([]Order, error)
}

type Repository interface {
	InsertOrder(ctx context.Context, db *gorm.DB, order *Order) error
	InsertLineItems(ctx context.Context, db *gorm.DB, items []OrderLineItem) error
	DeleteOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindLineItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderLineItem, error)
	// UpdateStatus applies the order's current field values conditionally on
	// the row still holding the expected from status. It reports whether the
	// row was actually updated.
	UpdateStatus(ctx context.Context, db *gorm.DB, order *Order, from Status) (bool, error)
	ApplyDeliveredAggregates(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, subtotal int64) error
	ListStale(ctx context.Context, db *gorm.DB, status Status, olderThan time.Time) ([]Order, error)
	ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID, limit int) ([]Order, error)
	ListByRestaurant(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, limit int) ([]Order, error)
}

var (
	ErrOrderNotFound         = errors.New("order_not_found")
	ErrValidation            = errors.New("validation_error")
	ErrItemNotFound          = errors.New("item_not_found")
	ErrItemUnavailable       = errors.New("item_unavailable")
	ErrCrossRestaurantItems  = errors.New("cross_restaurant_items")
	ErrRestaurantUnavailable = errors.New("restaurant_unavailable")
	ErrIllegalTransition     = errors.New("illegal_transition")
	ErrPersistenceFailure    = errors.New("persistence_failure")
)
