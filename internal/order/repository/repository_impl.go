package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/mealgrid/mealgrid/internal/order/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, order_number, customer_id, restaurant_id, status,
			subtotal, delivery_fee, commission_rate, commission_amount, total,
			delivery_address, contact_name, contact_phone, note,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.OrderNumber,
		order.CustomerID,
		order.RestaurantID,
		order.Status,
		order.Subtotal,
		order.DeliveryFee,
		order.CommissionRate,
		order.CommissionAmount,
		order.Total,
		order.DeliveryAddress,
		order.ContactName,
		order.ContactPhone,
		order.Note,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) InsertLineItems(ctx context.Context, db *gorm.DB, items []domain.OrderLineItem) error {
	for i := range items {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO order_line_items (id, order_id, menu_item_id, name, unit_price, quantity, subtotal, note)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			items[i].ID,
			items[i].OrderID,
			items[i].MenuItemID,
			items[i].Name,
			items[i].UnitPrice,
			items[i].Quantity,
			items[i].Subtotal,
			items[i].Note,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteOrder exists only for the compensating rollback of a failed
// creation. Nothing else deletes order rows.
func (r *repo) DeleteOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(`DELETE FROM order_line_items WHERE order_id = ?`, id).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(`DELETE FROM orders WHERE id = ?`, id).Error
}

func (r *repo) FindOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) FindLineItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderLineItem, error) {
	var items []domain.OrderLineItem
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, order *domain.Order, from domain.Status) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, cancel_reason = ?,
		     confirmed_at = ?, preparing_at = ?, out_for_delivery_at = ?,
		     delivered_at = ?, cancelled_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		order.Status,
		order.CancelReason,
		order.ConfirmedAt,
		order.PreparingAt,
		order.OutForDeliveryAt,
		order.DeliveredAt,
		order.CancelledAt,
		order.UpdatedAt,
		order.ID,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ApplyDeliveredAggregates(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, subtotal int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE restaurants
		 SET total_orders = total_orders + 1,
		     total_revenue = total_revenue + ?
		 WHERE id = ?`,
		subtotal,
		restaurantID,
	).Error
}

func (r *repo) ListStale(ctx context.Context, db *gorm.DB, status domain.Status, olderThan time.Time) ([]domain.Order, error) {
	var orders []domain.Order
	err := db.WithContext(ctx).
		Where("status = ? AND created_at < ?", status, olderThan).
		Order("created_at asc").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID, limit int) ([]domain.Order, error) {
	var orders []domain.Order
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListByRestaurant(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, limit int) ([]domain.Order, error) {
	var orders []domain.Order
	err := db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
