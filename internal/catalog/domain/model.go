package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Restaurant struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	Name           string       `json:"name" gorm:"type:text;not null"`
	Slug           string       `json:"slug" gorm:"type:text;not null;uniqueIndex:ux_restaurants_slug"`
	IsActive       bool         `json:"is_active" gorm:"column:is_active;not null;default:true"`
	IsOpen         bool         `json:"is_open" gorm:"column:is_open;not null;default:false"`
	DeliveryFee    int64        `json:"delivery_fee" gorm:"column:delivery_fee;not null"`
	CommissionRate float64      `json:"commission_rate" gorm:"column:commission_rate;not null"`
	TotalOrders    int64        `json:"total_orders" gorm:"column:total_orders;not null;default:0"`
	TotalRevenue   int64        `json:"total_revenue" gorm:"column:total_revenue;not null;default:0"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (Restaurant) TableName() string { return "restaurants" }

type MenuItem struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	RestaurantID snowflake.ID `json:"restaurant_id" gorm:"column:restaurant_id;not null;index"`
	Name         string       `json:"name" gorm:"type:text;not null"`
	Price        int64        `json:"price" gorm:"not null"`
	IsAvailable  bool         `json:"is_available" gorm:"column:is_available;not null;default:true"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (MenuItem) TableName() string { return "menu_items" }
