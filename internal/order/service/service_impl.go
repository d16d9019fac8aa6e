package service

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/mealgrid/mealgrid/internal/audit/domain"
	catalogdomain "github.com/mealgrid/mealgrid/internal/catalog/domain"
	"github.com/mealgrid/mealgrid/internal/clock"
	"github.com/mealgrid/mealgrid/internal/order/domain"
	"github.com/mealgrid/mealgrid/internal/order/ordernumber"
	"github.com/mealgrid/mealgrid/pkg/log/ctxlogger"
	"github.com/mealgrid/mealgrid/pkg/rls"
)

const (
	maxLineItems   = 20
	maxItemQty     = 20
	defaultListLim = 50
	maxListLim     = 250
)

// phonePattern accepts digits with an optional leading plus after
// normalization strips spaces, dashes and parentheses.
var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Catalog catalogdomain.Service
	Numbers *ordernumber.Generator
	Audit   auditdomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	catalog catalogdomain.Service
	numbers *ordernumber.Generator
	audit   auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("order.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
		numbers: p.Numbers,
		audit:   p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Order, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	itemIDs := make([]snowflake.ID, 0, len(req.Items))
	for _, item := range req.Items {
		itemIDs = append(itemIDs, item.ItemID)
	}
	quotes, err := s.catalog.Quote(ctx, itemIDs)
	if err != nil {
		return nil, err
	}

	for _, item := range req.Items {
		quote, ok := quotes[item.ItemID]
		if !ok {
			return nil, domain.ErrItemNotFound
		}
		if !quote.Available {
			return nil, domain.ErrItemUnavailable
		}
		if quote.RestaurantID != req.RestaurantID {
			return nil, domain.ErrCrossRestaurantItems
		}
	}

	restaurant, err := s.catalog.GetRestaurant(ctx, req.RestaurantID)
	if err != nil {
		if err == catalogdomain.ErrRestaurantNotFound {
			return nil, domain.ErrRestaurantUnavailable
		}
		return nil, err
	}
	if !restaurant.IsActive || !restaurant.IsOpen {
		return nil, domain.ErrRestaurantUnavailable
	}

	var subtotal int64
	lineItems := make([]domain.OrderLineItem, 0, len(req.Items))
	for _, item := range req.Items {
		quote := quotes[item.ItemID]
		lineSubtotal := quote.UnitPrice * int64(item.Quantity)
		subtotal += lineSubtotal
		lineItems = append(lineItems, domain.OrderLineItem{
			ID:         s.genID.Generate(),
			MenuItemID: item.ItemID,
			Name:       quote.Name,
			UnitPrice:  quote.UnitPrice,
			Quantity:   item.Quantity,
			Subtotal:   lineSubtotal,
			Note:       item.Note,
		})
	}

	commission := int64(math.Round(float64(subtotal) * restaurant.CommissionRate / 100))
	now := s.clock.Now()

	// The day counter is consumed before the order row lands, so a create
	// that fails after this point leaves a gap in the day's sequence.
	// Numbers stay unique and ordered; gapless is not promised.
	orderNumber, err := s.numbers.Next(ctx, s.db, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}

	order := &domain.Order{
		ID:               s.genID.Generate(),
		OrderNumber:      orderNumber,
		CustomerID:       req.CustomerID,
		RestaurantID:     req.RestaurantID,
		Status:           domain.StatusAwaitingPayment,
		Subtotal:         subtotal,
		DeliveryFee:      restaurant.DeliveryFee,
		CommissionRate:   restaurant.CommissionRate,
		CommissionAmount: commission,
		Total:            subtotal + restaurant.DeliveryFee,
		DeliveryAddress:  strings.TrimSpace(req.DeliveryAddress),
		ContactName:      strings.TrimSpace(req.ContactName),
		ContactPhone:     strings.TrimSpace(req.ContactPhone),
		Note:             req.Note,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for i := range lineItems {
		lineItems[i].OrderID = order.ID
	}

	if err := s.repo.InsertOrder(ctx, s.db, order); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}

	// Order and line items are not wrapped in one transaction. A line-item
	// failure after the order row commits rolls back with an explicit
	// delete so no zero-item order survives.
	if err := s.repo.InsertLineItems(ctx, s.db, lineItems); err != nil {
		if delErr := s.repo.DeleteOrder(ctx, s.db, order.ID); delErr != nil {
			ctxlogger.WithContext(ctx, s.log).Error("failed to roll back order after line item failure",
				zap.String("order_id", order.ID.String()),
				zap.Error(delErr),
			)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	order.LineItems = lineItems

	orderID := order.ID.String()
	if err := s.audit.Record(ctx, auditdomain.ActionOrderCreated, "order", &orderID, map[string]any{
		"order_number":  order.OrderNumber,
		"restaurant_id": order.RestaurantID.String(),
		"subtotal":      order.Subtotal,
		"total":         order.Total,
		"item_count":    len(order.LineItems),
	}); err != nil {
		ctxlogger.WithContext(ctx, s.log).Warn("failed to record order creation", zap.Error(err))
	}

	return order, nil
}

func validateCreate(req domain.CreateRequest) error {
	if req.CustomerID == 0 {
		return fmt.Errorf("%w: customer_id", domain.ErrValidation)
	}
	if req.RestaurantID == 0 {
		return fmt.Errorf("%w: restaurant_id", domain.ErrValidation)
	}
	if len(req.Items) < 1 || len(req.Items) > maxLineItems {
		return fmt.Errorf("%w: items", domain.ErrValidation)
	}
	for _, item := range req.Items {
		if item.ItemID == 0 {
			return fmt.Errorf("%w: items.item_id", domain.ErrValidation)
		}
		if item.Quantity < 1 || item.Quantity > maxItemQty {
			return fmt.Errorf("%w: items.quantity", domain.ErrValidation)
		}
	}
	if strings.TrimSpace(req.DeliveryAddress) == "" {
		return fmt.Errorf("%w: delivery_address", domain.ErrValidation)
	}
	if strings.TrimSpace(req.ContactName) == "" {
		return fmt.Errorf("%w: contact_name", domain.ErrValidation)
	}
	if !validPhone(req.ContactPhone) {
		return fmt.Errorf("%w: contact_phone", domain.ErrValidation)
	}
	return nil
}

func validPhone(raw string) bool {
	normalized := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	return phonePattern.MatchString(normalized)
}

func (s *Service) Transition(ctx context.Context, orderID snowflake.ID, req domain.TransitionRequest) (*domain.Order, error) {
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: status", domain.ErrValidation)
	}

	order, err := s.repo.FindOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	// Same-state transitions pass through without touching the row, so a
	// retried delivered call can never re-increment restaurant aggregates.
	if order.Status == req.Status {
		return order, nil
	}
	if !domain.CanTransition(order.Status, req.Status) {
		return nil, domain.ErrIllegalTransition
	}

	from := order.Status
	updated := *order
	updated.Status = req.Status
	now := s.clock.Now()
	updated.UpdatedAt = now
	stampTimestamp(&updated, req.Status, now)
	if req.Status == domain.StatusCancelled && req.Reason != nil {
		reason := strings.TrimSpace(*req.Reason)
		if reason != "" {
			updated.CancelReason = &reason
		}
	}

	// Status flip and aggregate increment commit together: if the
	// aggregate write fails, the status rolls back and the caller can
	// retry the whole transition.
	var applied bool
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		applied, err = s.repo.UpdateStatus(ctx, tx, &updated, from)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		if req.Status == domain.StatusDelivered {
			if err := s.repo.ApplyDeliveredAggregates(ctx, tx, updated.RestaurantID, updated.Subtotal); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	if !applied {
		// Lost a race. Re-read: if the winner applied the same transition,
		// treat ours as the idempotent no-op; anything else is illegal now.
		current, err := s.repo.FindOrder(ctx, s.db, orderID)
		if err != nil {
			return nil, err
		}
		if current != nil && current.Status == req.Status {
			return current, nil
		}
		return nil, domain.ErrIllegalTransition
	}

	s.recordTransition(ctx, &updated, from)
	return &updated, nil
}

func stampTimestamp(order *domain.Order, status domain.Status, now time.Time) {
	switch status {
	case domain.StatusConfirmed:
		order.ConfirmedAt = &now
	case domain.StatusPreparing:
		order.PreparingAt = &now
	case domain.StatusOutForDelivery:
		order.OutForDeliveryAt = &now
	case domain.StatusDelivered:
		order.DeliveredAt = &now
	case domain.StatusCancelled:
		order.CancelledAt = &now
	}
}

func (s *Service) recordTransition(ctx context.Context, order *domain.Order, from domain.Status) {
	orderID := order.ID.String()
	action := auditdomain.ActionOrderStatusChanged
	metadata := map[string]any{
		"order_number": order.OrderNumber,
		"from":         string(from),
		"to":           string(order.Status),
	}
	if order.Status == domain.StatusCancelled {
		action = auditdomain.ActionOrderCancelled
		if order.CancelReason != nil {
			metadata["reason"] = *order.CancelReason
		}
	}
	if err := s.audit.Record(ctx, action, "order", &orderID, metadata); err != nil {
		ctxlogger.WithContext(ctx, s.log).Warn("failed to record order transition", zap.Error(err))
	}
}

func (s *Service) CancelStale(ctx context.Context, olderThan time.Duration) (int, error) {
	threshold := s.clock.Now().Add(-olderThan)
	stale, err := s.repo.ListStale(ctx, s.db, domain.StatusAwaitingPayment, threshold)
	if err != nil {
		return 0, err
	}

	reason := domain.CancelReasonPaymentTimeout
	cancelled := 0
	for i := range stale {
		order := stale[i]
		updated := order
		updated.Status = domain.StatusCancelled
		now := s.clock.Now()
		updated.CancelledAt = &now
		updated.UpdatedAt = now
		updated.CancelReason = &reason

		applied, err := s.repo.UpdateStatus(ctx, s.db, &updated, domain.StatusAwaitingPayment)
		if err != nil {
			return cancelled, err
		}
		if !applied {
			// Someone confirmed or cancelled it since the select. Skip.
			continue
		}

		s.recordTransition(ctx, &updated, domain.StatusAwaitingPayment)
		cancelled++
	}

	if cancelled > 0 {
		ctxlogger.WithContext(ctx, s.log).Info("cancelled stale orders", zap.Int("count", cancelled))
	}
	return cancelled, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindOrder(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	items, err := s.repo.FindLineItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	order.LineItems = items
	return order, nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID snowflake.ID, limit int) ([]domain.Order, error) {
	return s.repo.ListByCustomer(ctx, s.db, customerID, clampLimit(limit))
}

func (s *Service) ListByRestaurant(ctx context.Context, restaurantID snowflake.ID, limit int) ([]domain.Order, error) {
	var orders []domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := rls.WithRestaurant(tx, int64(restaurantID)); err != nil {
				return err
			}
		}
		var err error
		orders, err = s.repo.ListByRestaurant(ctx, tx, restaurantID, clampLimit(limit))
		return err
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLim
	}
	if limit > maxListLim {
		return maxListLim
	}
	return limit
}
