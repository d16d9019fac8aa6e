package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/mealgrid/mealgrid/internal/catalog/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindRestaurant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Restaurant, error) {
	var restaurant domain.Restaurant
	err := db.WithContext(ctx).Where("id = ?", id).First(&restaurant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &restaurant, nil
}

func (r *repo) InsertRestaurant(ctx context.Context, db *gorm.DB, restaurant *domain.Restaurant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO restaurants (
			id, name, slug, is_active, is_open, delivery_fee, commission_rate,
			total_orders, total_revenue, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		restaurant.ID,
		restaurant.Name,
		restaurant.Slug,
		restaurant.IsActive,
		restaurant.IsOpen,
		restaurant.DeliveryFee,
		restaurant.CommissionRate,
		restaurant.TotalOrders,
		restaurant.TotalRevenue,
		restaurant.CreatedAt,
		restaurant.UpdatedAt,
	).Error
}

// UpdateRestaurant writes mutable fields only. Aggregates are owned by the
// order delivery path and are never written here.
func (r *repo) UpdateRestaurant(ctx context.Context, db *gorm.DB, restaurant *domain.Restaurant) error {
	return db.WithContext(ctx).Exec(
		`UPDATE restaurants
		 SET name = ?, delivery_fee = ?, commission_rate = ?, is_active = ?, is_open = ?, updated_at = ?
		 WHERE id = ?`,
		restaurant.Name,
		restaurant.DeliveryFee,
		restaurant.CommissionRate,
		restaurant.IsActive,
		restaurant.IsOpen,
		restaurant.UpdatedAt,
		restaurant.ID,
	).Error
}

func (r *repo) FindMenuItems(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.MenuItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.MenuItem
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindMenuItem(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.MenuItem, error) {
	var item domain.MenuItem
	err := db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindMenuItemsByRestaurant(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID) ([]domain.MenuItem, error) {
	var items []domain.MenuItem
	err := db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Order("name asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertMenuItem(ctx context.Context, db *gorm.DB, item *domain.MenuItem) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO menu_items (id, restaurant_id, name, price, is_available, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.RestaurantID,
		item.Name,
		item.Price,
		item.IsAvailable,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
}

func (r *repo) UpdateMenuItem(ctx context.Context, db *gorm.DB, item *domain.MenuItem) error {
	return db.WithContext(ctx).Exec(
		`UPDATE menu_items
		 SET name = ?, price = ?, is_available = ?, updated_at = ?
		 WHERE id = ?`,
		item.Name,
		item.Price,
		item.IsAvailable,
		item.UpdatedAt,
		item.ID,
	).Error
}
