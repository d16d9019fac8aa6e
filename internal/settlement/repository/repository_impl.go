package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	orderdomain "github.com/mealgrid/mealgrid/internal/order/domain"
	"github.com/mealgrid/mealgrid/internal/settlement/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByPeriod(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, periodStart, periodEnd time.Time) (*domain.Settlement, error) {
	var settlement domain.Settlement
	err := db.WithContext(ctx).
		Where("restaurant_id = ? AND period_start = ? AND period_end = ?", restaurantID, periodStart, periodEnd).
		First(&settlement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Settlement, error) {
	var settlement domain.Settlement
	err := db.WithContext(ctx).Where("id = ?", id).First(&settlement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, settlement *domain.Settlement) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO settlements (
			id, restaurant_id, period_start, period_end,
			order_count, total_gmv, total_commission, total_delivery_fees, net_payout,
			status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		settlement.ID,
		settlement.RestaurantID,
		settlement.PeriodStart,
		settlement.PeriodEnd,
		settlement.OrderCount,
		settlement.TotalGMV,
		settlement.TotalCommission,
		settlement.TotalDeliveryFees,
		settlement.NetPayout,
		settlement.Status,
		settlement.CreatedAt,
		settlement.UpdatedAt,
	).Error
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, settlement *domain.Settlement) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE settlements
		 SET status = ?, payment_reference = ?, paid_by = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusPaid,
		settlement.PaymentReference,
		settlement.PaidBy,
		settlement.PaidAt,
		settlement.UpdatedAt,
		settlement.ID,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListDelivered(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, from, to time.Time) ([]orderdomain.Order, error) {
	var orders []orderdomain.Order
	err := db.WithContext(ctx).
		Where("restaurant_id = ? AND status = ? AND delivered_at >= ? AND delivered_at <= ?",
			restaurantID, orderdomain.StatusDelivered, from, to).
		Order("delivered_at asc, id asc").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListByRestaurant(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, limit int) ([]domain.Settlement, error) {
	var settlements []domain.Settlement
	err := db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Order("period_start desc, id desc").
		Limit(limit).
		Find(&settlements).Error
	if err != nil {
		return nil, err
	}
	return settlements, nil
}
