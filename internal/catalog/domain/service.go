package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// QuoteItem is a point-in-time read of a menu item. Prices quoted here are
// the only prices order assembly may use.
type QuoteItem struct {
	ItemID       snowflake.ID `json:"item_id"`
	RestaurantID snowflake.ID `json:"restaurant_id"`
	Name         string       `json:"name"`
	UnitPrice    int64        `json:"unit_price"`
	Available    bool         `json:"available"`
}

type CreateRestaurantRequest struct {
	Name           string  `json:"name"`
	DeliveryFee    int64   `json:"delivery_fee"`
	CommissionRate float64 `json:"commission_rate"`
}

type UpdateRestaurantRequest struct {
	Name           *string  `json:"name,omitempty"`
	DeliveryFee    *int64   `json:"delivery_fee,omitempty"`
	CommissionRate *float64 `json:"commission_rate,omitempty"`
	IsActive       *bool    `json:"is_active,omitempty"`
	IsOpen         *bool    `json:"is_open,omitempty"`
}

type CreateMenuItemRequest struct {
	RestaurantID snowflake.ID `json:"restaurant_id"`
	Name         string       `json:"name"`
	Price        int64        `json:"price"`
}

type UpdateMenuItemRequest struct {
	Name        *string `json:"name,omitempty"`
	Price       *int64  `json:"price,omitempty"`
	IsAvailable *bool   `json:"is_available,omitempty"`
}

type Service interface {
	// Quote returns the current price and availability for every requested
	// item id it finds. Missing ids are simply absent from the result, so
	// callers must verify presence before trusting the quote.
	Quote(ctx context.Context, itemIDs []snowflake.ID) (map[snowflake.ID]QuoteItem, error)
	GetRestaurant(ctx context.Context, id snowflake.ID) (*Restaurant, error)
	CreateRestaurant(ctx context.Context, req CreateRestaurantRequest) (*Restaurant, error)
	UpdateRestaurant(ctx context.Context, id snowflake.ID, req UpdateRestaurantRequest) (*Restaurant, error)
	CreateMenuItem(ctx context.Context, req CreateMenuItemRequest) (*MenuItem, error)
	GetMenuItem(ctx context.Context, id snowflake.ID) (*MenuItem, error)
	UpdateMenuItem(ctx context.Context, id snowflake.ID, req UpdateMenuItemRequest) (*MenuItem, error)
	ListMenuItems(ctx context.Context, restaurantID snowflake.ID) ([]MenuItem, error)
}

type Repository interface {
	FindRestaurant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Restaurant, error)
	InsertRestaurant(ctx context.Context, db *gorm.DB, restaurant *Restaurant) error
	UpdateRestaurant(ctx context.Context, db *gorm.DB, restaurant *Restaurant) error
	FindMenuItems(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]MenuItem, error)
	FindMenuItem(ctx context.Context, db *gorm.DB, id snowflake.ID) (*MenuItem, error)
	FindMenuItemsByRestaurant(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID) ([]MenuItem, error)
	InsertMenuItem(ctx context.Context, db *gorm.DB, item *MenuItem) error
	UpdateMenuItem(ctx context.Context, db *gorm.DB, item *MenuItem) error
}

var (
	ErrRestaurantNotFound  = errors.New("restaurant_not_found")
	ErrMenuItemNotFound    = errors.New("menu_item_not_found")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrInvalidDeliveryFee  = errors.New("invalid_delivery_fee")
	ErrInvalidCommission   = errors.New("invalid_commission_rate")
	ErrDuplicateRestaurant = errors.New("duplicate_restaurant")
	ErrEmptyQuoteRequest   = errors.New("empty_quote_request")
)
