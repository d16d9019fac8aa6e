package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/mealgrid/mealgrid/internal/audit/domain"
	auditrepository "github.com/mealgrid/mealgrid/internal/audit/repository"
	auditservice "github.com/mealgrid/mealgrid/internal/audit/service"
	"github.com/mealgrid/mealgrid/internal/catalog/domain"
	"github.com/mealgrid/mealgrid/internal/catalog/repository"
	"github.com/mealgrid/mealgrid/internal/clock"
)

func newCatalogService(t *testing.T) (domain.Service, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbConn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&domain.Restaurant{}, &domain.MenuItem{}, &auditdomain.AuditEntry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(5)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	log := zap.NewNop()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    dbConn,
		Log:   log,
		GenID: node,
		Repo:  auditrepository.Provide(),
	})

	svc := New(Params{
		DB:    dbConn,
		Log:   log,
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
		Audit: auditSvc,
	})
	return svc, node
}

func TestCreateRestaurant(t *testing.T) {
	svc, _ := newCatalogService(t)

	restaurant, err := svc.CreateRestaurant(context.Background(), domain.CreateRestaurantRequest{
		Name:           "Café Almaty",
		DeliveryFee:    600,
		CommissionRate: 15,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if restaurant.Slug != "cafe-almaty" {
		t.Errorf("slug = %q, want cafe-almaty", restaurant.Slug)
	}
	if !restaurant.IsActive {
		t.Error("new restaurants start active")
	}
	if restaurant.IsOpen {
		t.Error("new restaurants start closed until the owner opens them")
	}

	_, err = svc.CreateRestaurant(context.Background(), domain.CreateRestaurantRequest{
		Name:           "Café Almaty",
		DeliveryFee:    600,
		CommissionRate: 15,
	})
	if !errors.Is(err, domain.ErrDuplicateRestaurant) {
		t.Fatalf("expected ErrDuplicateRestaurant, got %v", err)
	}
}

func TestCreateRestaurantValidation(t *testing.T) {
	svc, _ := newCatalogService(t)

	cases := []struct {
		name string
		req  domain.CreateRestaurantRequest
		want error
	}{
		{"EmptyName", domain.CreateRestaurantRequest{Name: "  ", CommissionRate: 10}, domain.ErrInvalidName},
		{"NegativeFee", domain.CreateRestaurantRequest{Name: "A", DeliveryFee: -1, CommissionRate: 10}, domain.ErrInvalidDeliveryFee},
		{"NegativeCommission", domain.CreateRestaurantRequest{Name: "B", CommissionRate: -0.1}, domain.ErrInvalidCommission},
		{"CommissionOverCap", domain.CreateRestaurantRequest{Name: "C", CommissionRate: 100.5}, domain.ErrInvalidCommission},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateRestaurant(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUpdateRestaurant(t *testing.T) {
	svc, node := newCatalogService(t)

	restaurant, err := svc.CreateRestaurant(context.Background(), domain.CreateRestaurantRequest{
		Name:           "Plov House",
		DeliveryFee:    400,
		CommissionRate: 10,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	fee := int64(450)
	open := true
	updated, err := svc.UpdateRestaurant(context.Background(), restaurant.ID, domain.UpdateRestaurantRequest{
		DeliveryFee: &fee,
		IsOpen:      &open,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.DeliveryFee != 450 || !updated.IsOpen {
		t.Errorf("unexpected update result: fee=%d open=%v", updated.DeliveryFee, updated.IsOpen)
	}
	// Untouched fields survive a partial update.
	if updated.Name != "Plov House" || updated.CommissionRate != 10 {
		t.Errorf("partial update clobbered fields: %+v", updated)
	}

	bad := 101.0
	if _, err := svc.UpdateRestaurant(context.Background(), restaurant.ID, domain.UpdateRestaurantRequest{CommissionRate: &bad}); !errors.Is(err, domain.ErrInvalidCommission) {
		t.Fatalf("expected ErrInvalidCommission, got %v", err)
	}

	if _, err := svc.UpdateRestaurant(context.Background(), node.Generate(), domain.UpdateRestaurantRequest{IsOpen: &open}); !errors.Is(err, domain.ErrRestaurantNotFound) {
		t.Fatalf("expected ErrRestaurantNotFound, got %v", err)
	}
}

func TestMenuItemLifecycle(t *testing.T) {
	svc, node := newCatalogService(t)

	restaurant, err := svc.CreateRestaurant(context.Background(), domain.CreateRestaurantRequest{
		Name:           "Doner Spot",
		CommissionRate: 10,
	})
	if err != nil {
		t.Fatalf("create restaurant failed: %v", err)
	}

	item, err := svc.CreateMenuItem(context.Background(), domain.CreateMenuItemRequest{
		RestaurantID: restaurant.ID,
		Name:         "Doner",
		Price:        1300,
	})
	if err != nil {
		t.Fatalf("create item failed: %v", err)
	}
	if !item.IsAvailable {
		t.Error("new items start available")
	}

	if _, err := svc.CreateMenuItem(context.Background(), domain.CreateMenuItemRequest{
		RestaurantID: restaurant.ID,
		Name:         "Free Doner",
		Price:        0,
	}); !errors.Is(err, domain.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}

	if _, err := svc.CreateMenuItem(context.Background(), domain.CreateMenuItemRequest{
		RestaurantID: node.Generate(),
		Name:         "Orphan",
		Price:        100,
	}); !errors.Is(err, domain.ErrRestaurantNotFound) {
		t.Fatalf("expected ErrRestaurantNotFound, got %v", err)
	}

	price := int64(1400)
	available := false
	updated, err := svc.UpdateMenuItem(context.Background(), item.ID, domain.UpdateMenuItemRequest{
		Price:       &price,
		IsAvailable: &available,
	})
	if err != nil {
		t.Fatalf("update item failed: %v", err)
	}
	if updated.Price != 1400 || updated.IsAvailable {
		t.Errorf("unexpected update result: %+v", updated)
	}

	items, err := svc.ListMenuItems(context.Background(), restaurant.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("listed %d items, want 1", len(items))
	}
}

func TestQuote(t *testing.T) {
	svc, node := newCatalogService(t)

	restaurant, err := svc.CreateRestaurant(context.Background(), domain.CreateRestaurantRequest{
		Name:           "Soup Corner",
		CommissionRate: 10,
	})
	if err != nil {
		t.Fatalf("create restaurant failed: %v", err)
	}
	soup, err := svc.CreateMenuItem(context.Background(), domain.CreateMenuItemRequest{
		RestaurantID: restaurant.ID,
		Name:         "Borscht",
		Price:        900,
	})
	if err != nil {
		t.Fatalf("create item failed: %v", err)
	}

	missing := node.Generate()
	quotes, err := svc.Quote(context.Background(), []snowflake.ID{soup.ID, soup.ID, missing})
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}

	// Duplicates collapse and unknown ids are absent, not errors.
	if len(quotes) != 1 {
		t.Fatalf("quote returned %d items, want 1", len(quotes))
	}
	quote, ok := quotes[soup.ID]
	if !ok {
		t.Fatal("quote missing the known item")
	}
	if quote.UnitPrice != 900 || quote.RestaurantID != restaurant.ID || !quote.Available {
		t.Errorf("unexpected quote: %+v", quote)
	}
	if _, ok := quotes[missing]; ok {
		t.Error("quote invented an unknown item")
	}

	if _, err := svc.Quote(context.Background(), nil); !errors.Is(err, domain.ErrEmptyQuoteRequest) {
		t.Fatalf("expected ErrEmptyQuoteRequest, got %v", err)
	}
}
