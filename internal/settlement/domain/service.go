package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	orderdomain "github.com/mealgrid/mealgrid/internal/order/domain"
)

type GenerateRequest struct {
	RestaurantID snowflake.ID `json:"restaurant_id"`
	PeriodStart  string       `json:"period_start"` // YYYY-MM-DD
	PeriodEnd    string       `json:"period_end"`   // YYYY-MM-DD
}

type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (*Settlement, error)
	MarkPaid(ctx context.Context, id snowflake.ID, paymentReference string) (*Settlement, error)
	Get(ctx context.Context, id snowflake.ID) (*Settlement, error)
	ListByRestaurant(ctx context.Context, restaurantID snowflake.ID, limit int) ([]Settlement, error)
}

type Repository interface {
	FindByPeriod(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, periodStart, periodEnd time.Time) (*Settlement, error)
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Settlement, error)
	Insert(ctx context.Context, db *gorm.DB, settlement *Settlement) error
	// MarkPaid stamps payment fields conditionally on the row still being
	// pending, reporting whether it flipped the status.
	MarkPaid(ctx context.Context, db *gorm.DB, settlement *Settlement) (bool, error)
	ListDelivered(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, from, to time.Time) ([]orderdomain.Order, error)
	ListByRestaurant(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, limit int) ([]Settlement, error)
}

// AlreadyExistsError carries the existing settlement's identity so a
// duplicate generate request can point at the record it collided with.
type AlreadyExistsError struct {
	ID     snowflake.ID
	Status Status
}

func (e *AlreadyExistsError) Error() string { return "settlement_already_exists" }

func (e *AlreadyExistsError) Is(target error) bool { return target == ErrAlreadyExists }

// AlreadyPaidError carries the payment reference recorded by the first
// successful markPaid call.
type AlreadyPaidError struct {
	ID               snowflake.ID
	PaymentReference string
}

func (e *AlreadyPaidError) Error() string { return "settlement_already_paid" }

func (e *AlreadyPaidError) Is(target error) bool { return target == ErrAlreadyPaid }

var (
	ErrAlreadyExists   = errors.New("settlement_already_exists")
	ErrAlreadyPaid     = errors.New("settlement_already_paid")
	ErrNothingToSettle = errors.New("nothing_to_settle")
	ErrNotFound        = errors.New("settlement_not_found")
	ErrInvalidPeriod   = errors.New("invalid_period")
	ErrInvalidPayment  = errors.New("invalid_payment_reference")
)
