package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mealgrid/mealgrid/internal/actorctx"
	auditdomain "github.com/mealgrid/mealgrid/internal/audit/domain"
	"github.com/mealgrid/mealgrid/internal/clock"
	"github.com/mealgrid/mealgrid/internal/config"
	"github.com/mealgrid/mealgrid/internal/settlement/domain"
	"github.com/mealgrid/mealgrid/pkg/db"
	"github.com/mealgrid/mealgrid/pkg/log/ctxlogger"
	"github.com/mealgrid/mealgrid/pkg/rls"
)

const (
	defaultListLim = 50
	maxListLim     = 250
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Audit auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	location *time.Location
	repo     domain.Repository
	audit    auditdomain.Service
}

func New(p Params) (domain.Service, error) {
	location, err := time.LoadLocation(p.Cfg.OperatorTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid operator timezone %q: %w", p.Cfg.OperatorTimezone, err)
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("settlement.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		location: location,
		repo:     p.Repo,
		audit:    p.Audit,
	}, nil
}

func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.Settlement, error) {
	if req.RestaurantID == 0 {
		return nil, domain.ErrInvalidPeriod
	}
	periodStart, periodEnd, err := s.parsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByPeriod(ctx, s.db, req.RestaurantID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &domain.AlreadyExistsError{ID: existing.ID, Status: existing.Status}
	}

	// Window is inclusive on both day boundaries: [start 00:00, end
	// 23:59:59.999] in the operator timezone.
	windowEnd := periodEnd.AddDate(0, 0, 1).Add(-time.Millisecond)
	orders, err := s.repo.ListDelivered(ctx, s.db, req.RestaurantID, periodStart, windowEnd)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, domain.ErrNothingToSettle
	}

	// Sums use each order's frozen snapshot fields. Current commission
	// rates never enter this calculation.
	settlement := &domain.Settlement{
		ID:           s.genID.Generate(),
		RestaurantID: req.RestaurantID,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		OrderCount:   int64(len(orders)),
		Status:       domain.StatusPending,
	}
	for i := range orders {
		settlement.TotalGMV += orders[i].Subtotal
		settlement.TotalCommission += orders[i].CommissionAmount
		settlement.TotalDeliveryFees += orders[i].DeliveryFee
	}
	settlement.NetPayout = settlement.TotalGMV - settlement.TotalCommission

	now := s.clock.Now()
	settlement.CreatedAt = now
	settlement.UpdatedAt = now

	if err := s.repo.Insert(ctx, s.db, settlement); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// A concurrent generate won the insert race. Surface its record.
			winner, findErr := s.repo.FindByPeriod(ctx, s.db, req.RestaurantID, periodStart, periodEnd)
			if findErr == nil && winner != nil {
				return nil, &domain.AlreadyExistsError{ID: winner.ID, Status: winner.Status}
			}
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}

	settlementID := settlement.ID.String()
	if err := s.audit.Record(ctx, auditdomain.ActionSettlementCreated, "settlement", &settlementID, map[string]any{
		"restaurant_id":       settlement.RestaurantID.String(),
		"period_start":        req.PeriodStart,
		"period_end":          req.PeriodEnd,
		"order_count":         settlement.OrderCount,
		"total_gmv":           settlement.TotalGMV,
		"total_commission":    settlement.TotalCommission,
		"total_delivery_fees": settlement.TotalDeliveryFees,
		"net_payout":          settlement.NetPayout,
	}); err != nil {
		ctxlogger.WithContext(ctx, s.log).Warn("failed to record settlement creation", zap.Error(err))
	}

	return settlement, nil
}

func (s *Service) parsePeriod(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(startRaw), s.location)
	if err != nil {
		return time.Time{}, time.Time{}, domain.ErrInvalidPeriod
	}
	end, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(endRaw), s.location)
	if err != nil {
		return time.Time{}, time.Time{}, domain.ErrInvalidPeriod
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, domain.ErrInvalidPeriod
	}
	return start, end, nil
}

func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID, paymentReference string) (*domain.Settlement, error) {
	paymentReference = strings.TrimSpace(paymentReference)
	if paymentReference == "" {
		return nil, domain.ErrInvalidPayment
	}

	settlement, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return nil, domain.ErrNotFound
	}
	if settlement.Status == domain.StatusPaid {
		return nil, alreadyPaid(settlement)
	}

	now := s.clock.Now()
	paidBy := "system"
	if actorType, actorID := actorctx.ActorFromContext(ctx); actorType == string(auditdomain.ActorTypeUser) && actorID != "" {
		paidBy = actorID
	}

	updated := *settlement
	updated.Status = domain.StatusPaid
	updated.PaymentReference = &paymentReference
	updated.PaidBy = &paidBy
	updated.PaidAt = &now
	updated.UpdatedAt = now

	applied, err := s.repo.MarkPaid(ctx, s.db, &updated)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the race to another markPaid. Report the winner's reference.
		current, findErr := s.repo.Find(ctx, s.db, id)
		if findErr != nil {
			return nil, findErr
		}
		if current == nil {
			return nil, domain.ErrNotFound
		}
		return nil, alreadyPaid(current)
	}

	settlementID := updated.ID.String()
	if err := s.audit.Record(ctx, auditdomain.ActionSettlementPaid, "settlement", &settlementID, map[string]any{
		"restaurant_id":     updated.RestaurantID.String(),
		"payment_reference": paymentReference,
		"net_payout":        updated.NetPayout,
	}); err != nil {
		ctxlogger.WithContext(ctx, s.log).Warn("failed to record settlement payment", zap.Error(err))
	}

	return &updated, nil
}

func alreadyPaid(settlement *domain.Settlement) error {
	reference := ""
	if settlement.PaymentReference != nil {
		reference = *settlement.PaymentReference
	}
	return &domain.AlreadyPaidError{ID: settlement.ID, PaymentReference: reference}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Settlement, error) {
	settlement, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return nil, domain.ErrNotFound
	}
	return settlement, nil
}

func (s *Service) ListByRestaurant(ctx context.Context, restaurantID snowflake.ID, limit int) ([]domain.Settlement, error) {
	if limit <= 0 {
		limit = defaultListLim
	}
	if limit > maxListLim {
		limit = maxListLim
	}
	var settlements []domain.Settlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := rls.WithRestaurant(tx, int64(restaurantID)); err != nil {
				return err
			}
		}
		var err error
		settlements, err = s.repo.ListByRestaurant(ctx, tx, restaurantID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return settlements, nil
}
