package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/mealgrid/mealgrid/internal/audit/domain"
	"github.com/mealgrid/mealgrid/internal/catalog/domain"
	"github.com/mealgrid/mealgrid/internal/clock"
	"github.com/mealgrid/mealgrid/pkg/db"
	"github.com/mealgrid/mealgrid/pkg/log/ctxlogger"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Audit auditdomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	audit auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		audit: p.Audit,
	}
}

func (s *Service) Quote(ctx context.Context, itemIDs []snowflake.ID) (map[snowflake.ID]domain.QuoteItem, error) {
	if len(itemIDs) == 0 {
		return nil, domain.ErrEmptyQuoteRequest
	}

	unique := make([]snowflake.ID, 0, len(itemIDs))
	seen := make(map[snowflake.ID]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	items, err := s.repo.FindMenuItems(ctx, s.db, unique)
	if err != nil {
		return nil, err
	}

	quotes := make(map[snowflake.ID]domain.QuoteItem, len(items))
	for _, item := range items {
		quotes[item.ID] = domain.QuoteItem{
			ItemID:       item.ID,
			RestaurantID: item.RestaurantID,
			Name:         item.Name,
			UnitPrice:    item.Price,
			Available:    item.IsAvailable,
		}
	}
	return quotes, nil
}

func (s *Service) GetRestaurant(ctx context.Context, id snowflake.ID) (*domain.Restaurant, error) {
	restaurant, err := s.repo.FindRestaurant(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if restaurant == nil {
		return nil, domain.ErrRestaurantNotFound
	}
	return restaurant, nil
}

func (s *Service) CreateRestaurant(ctx context.Context, req domain.CreateRestaurantRequest) (*domain.Restaurant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.DeliveryFee < 0 {
		return nil, domain.ErrInvalidDeliveryFee
	}
	if req.CommissionRate < 0 || req.CommissionRate > 100 {
		return nil, domain.ErrInvalidCommission
	}

	now := s.clock.Now()
	restaurant := &domain.Restaurant{
		ID:             s.genID.Generate(),
		Name:           name,
		Slug:           slug.Make(name),
		IsActive:       true,
		IsOpen:         false,
		DeliveryFee:    req.DeliveryFee,
		CommissionRate: req.CommissionRate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.InsertRestaurant(ctx, s.db, restaurant); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateRestaurant
		}
		return nil, err
	}

	s.recordRestaurantAudit(ctx, restaurant, "created")
	return restaurant, nil
}

func (s *Service) UpdateRestaurant(ctx context.Context, id snowflake.ID, req domain.UpdateRestaurantRequest) (*domain.Restaurant, error) {
	restaurant, err := s.repo.FindRestaurant(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if restaurant == nil {
		return nil, domain.ErrRestaurantNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		restaurant.Name = name
	}
	if req.DeliveryFee != nil {
		if *req.DeliveryFee < 0 {
			return nil, domain.ErrInvalidDeliveryFee
		}
		restaurant.DeliveryFee = *req.DeliveryFee
	}
	if req.CommissionRate != nil {
		if *req.CommissionRate < 0 || *req.CommissionRate > 100 {
			return nil, domain.ErrInvalidCommission
		}
		restaurant.CommissionRate = *req.CommissionRate
	}
	if req.IsActive != nil {
		restaurant.IsActive = *req.IsActive
	}
	if req.IsOpen != nil {
		restaurant.IsOpen = *req.IsOpen
	}
	restaurant.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateRestaurant(ctx, s.db, restaurant); err != nil {
		return nil, err
	}

	s.recordRestaurantAudit(ctx, restaurant, "updated")
	return restaurant, nil
}

func (s *Service) CreateMenuItem(ctx context.Context, req domain.CreateMenuItemRequest) (*domain.MenuItem, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Price <= 0 {
		return nil, domain.ErrInvalidPrice
	}

	restaurant, err := s.repo.FindRestaurant(ctx, s.db, req.RestaurantID)
	if err != nil {
		return nil, err
	}
	if restaurant == nil {
		return nil, domain.ErrRestaurantNotFound
	}

	now := s.clock.Now()
	item := &domain.MenuItem{
		ID:           s.genID.Generate(),
		RestaurantID: req.RestaurantID,
		Name:         name,
		Price:        req.Price,
		IsAvailable:  true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertMenuItem(ctx, s.db, item); err != nil {
		return nil, err
	}

	s.recordMenuItemAudit(ctx, item, "created")
	return item, nil
}

func (s *Service) GetMenuItem(ctx context.Context, id snowflake.ID) (*domain.MenuItem, error) {
	item, err := s.repo.FindMenuItem(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrMenuItemNotFound
	}
	return item, nil
}

func (s *Service) UpdateMenuItem(ctx context.Context, id snowflake.ID, req domain.UpdateMenuItemRequest) (*domain.MenuItem, error) {
	item, err := s.repo.FindMenuItem(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrMenuItemNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Price != nil {
		if *req.Price <= 0 {
			return nil, domain.ErrInvalidPrice
		}
		item.Price = *req.Price
	}
	if req.IsAvailable != nil {
		item.IsAvailable = *req.IsAvailable
	}
	item.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateMenuItem(ctx, s.db, item); err != nil {
		return nil, err
	}

	s.recordMenuItemAudit(ctx, item, "updated")
	return item, nil
}

func (s *Service) ListMenuItems(ctx context.Context, restaurantID snowflake.ID) ([]domain.MenuItem, error) {
	restaurant, err := s.repo.FindRestaurant(ctx, s.db, restaurantID)
	if err != nil {
		return nil, err
	}
	if restaurant == nil {
		return nil, domain.ErrRestaurantNotFound
	}
	return s.repo.FindMenuItemsByRestaurant(ctx, s.db, restaurantID)
}

func (s *Service) recordRestaurantAudit(ctx context.Context, restaurant *domain.Restaurant, change string) {
	targetID := restaurant.ID.String()
	err := s.audit.Record(ctx, auditdomain.ActionRestaurantUpdated, "restaurant", &targetID, map[string]any{
		"change":          change,
		"name":            restaurant.Name,
		"is_active":       restaurant.IsActive,
		"is_open":         restaurant.IsOpen,
		"delivery_fee":    restaurant.DeliveryFee,
		"commission_rate": restaurant.CommissionRate,
	})
	if err != nil {
		ctxlogger.WithContext(ctx, s.log).Warn("failed to record restaurant change", zap.Error(err))
	}
}

func (s *Service) recordMenuItemAudit(ctx context.Context, item *domain.MenuItem, change string) {
	targetID := item.ID.String()
	err := s.audit.Record(ctx, auditdomain.ActionMenuItemUpdated, "menu_item", &targetID, map[string]any{
		"change":        change,
		"restaurant_id": item.RestaurantID.String(),
		"name":          item.Name,
		"price":         item.Price,
		"is_available":  item.IsAvailable,
	})
	if err != nil {
		ctxlogger.WithContext(ctx, s.log).Warn("failed to record menu item change", zap.Error(err))
	}
}
