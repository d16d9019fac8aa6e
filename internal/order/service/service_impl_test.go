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
	catalogdomain "github.com/mealgrid/mealgrid/internal/catalog/domain"
	catalogrepository "github.com/mealgrid/mealgrid/internal/catalog/repository"
	catalogservice "github.com/mealgrid/mealgrid/internal/catalog/service"
	"github.com/mealgrid/mealgrid/internal/clock"
	"github.com/mealgrid/mealgrid/internal/config"
	"github.com/mealgrid/mealgrid/internal/order/domain"
	"github.com/mealgrid/mealgrid/internal/order/ordernumber"
	"github.com/mealgrid/mealgrid/internal/order/repository"
)

type orderFixture struct {
	svc     domain.Service
	catalog catalogdomain.Service
	db      *gorm.DB
	clock   *clock.FakeClock
	node    *snowflake.Node
	params  Params
}

// withRepo builds a second service over the same database with a wrapped
// repository, so tests can inject storage failures.
func (f *orderFixture) withRepo(repo domain.Repository) domain.Service {
	p := f.params
	p.Repo = repo
	return New(p)
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbConn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	err = dbConn.AutoMigrate(
		&catalogdomain.Restaurant{},
		&catalogdomain.MenuItem{},
		&domain.Order{},
		&domain.OrderLineItem{},
		&ordernumber.Counter{},
		&auditdomain.AuditEntry{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    dbConn,
		Log:   log,
		GenID: node,
		Repo:  auditrepository.Provide(),
	})
	catalogSvc := catalogservice.New(catalogservice.Params{
		DB:    dbConn,
		Log:   log,
		GenID: node,
		Clock: fakeClock,
		Repo:  catalogrepository.Provide(),
		Audit: auditSvc,
	})

	cfg := config.Config{OrderNumberPrefix: "ORD", OperatorTimezone: "UTC"}
	numbers, err := ordernumber.NewGenerator(cfg)
	if err != nil {
		t.Fatalf("failed to create order number generator: %v", err)
	}

	params := Params{
		DB:      dbConn,
		Log:     log,
		GenID:   node,
		Clock:   fakeClock,
		Repo:    repository.Provide(),
		Catalog: catalogSvc,
		Numbers: numbers,
		Audit:   auditSvc,
	}

	return &orderFixture{
		svc:     New(params),
		catalog: catalogSvc,
		db:      dbConn,
		clock:   fakeClock,
		node:    node,
		params:  params,
	}
}

func (f *orderFixture) seedRestaurant(t *testing.T, deliveryFee int64, commissionRate float64) *catalogdomain.Restaurant {
	t.Helper()

	restaurant, err := f.catalog.CreateRestaurant(context.Background(), catalogdomain.CreateRestaurantRequest{
		Name:           "Test Kitchen " + t.Name() + " " + f.node.Generate().String(),
		DeliveryFee:    deliveryFee,
		CommissionRate: commissionRate,
	})
	if err != nil {
		t.Fatalf("failed to create restaurant: %v", err)
	}
	open := true
	restaurant, err = f.catalog.UpdateRestaurant(context.Background(), restaurant.ID, catalogdomain.UpdateRestaurantRequest{IsOpen: &open})
	if err != nil {
		t.Fatalf("failed to open restaurant: %v", err)
	}
	return restaurant
}

func (f *orderFixture) seedItem(t *testing.T, restaurantID snowflake.ID, name string, price int64) *catalogdomain.MenuItem {
	t.Helper()

	item, err := f.catalog.CreateMenuItem(context.Background(), catalogdomain.CreateMenuItemRequest{
		RestaurantID: restaurantID,
		Name:         name,
		Price:        price,
	})
	if err != nil {
		t.Fatalf("failed to create menu item: %v", err)
	}
	return item
}

func validCreateRequest(restaurantID snowflake.ID, customerID snowflake.ID, items ...domain.CreateItem) domain.CreateRequest {
	return domain.CreateRequest{
		CustomerID:      customerID,
		RestaurantID:    restaurantID,
		Items:           items,
		DeliveryAddress: "12 Abay Ave, apt 4",
		ContactName:     "Aigerim",
		ContactPhone:    "+7 (701) 123-45-67",
	}
}

func TestCreateOrderTotals(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 500, 10)
	pizza := f.seedItem(t, restaurant.ID, "Pizza", 1500)
	cola := f.seedItem(t, restaurant.ID, "Cola", 400)

	order, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: pizza.ID, Quantity: 2},
		domain.CreateItem{ItemID: cola.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	if order.Subtotal != 3400 {
		t.Errorf("subtotal = %d, want 3400", order.Subtotal)
	}
	if order.DeliveryFee != 500 {
		t.Errorf("delivery fee = %d, want 500", order.DeliveryFee)
	}
	if order.Total != 3900 {
		t.Errorf("total = %d, want 3900", order.Total)
	}
	if order.CommissionAmount != 340 {
		t.Errorf("commission = %d, want 340", order.CommissionAmount)
	}
	if order.Status != domain.StatusAwaitingPayment {
		t.Errorf("status = %s, want awaiting_payment", order.Status)
	}
	if len(order.LineItems) != 2 {
		t.Fatalf("line items = %d, want 2", len(order.LineItems))
	}
	if order.OrderNumber != "ORD-20260314-001" {
		t.Errorf("order number = %q, want ORD-20260314-001", order.OrderNumber)
	}

	// Line item snapshots carry name and unit price at order time.
	if order.LineItems[0].Name != "Pizza" || order.LineItems[0].UnitPrice != 1500 || order.LineItems[0].Subtotal != 3000 {
		t.Errorf("unexpected first line item: %+v", order.LineItems[0])
	}
}

func TestCreateOrderCommissionRounding(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 0, 12.5)
	item := f.seedItem(t, restaurant.ID, "Soup", 999)

	order, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	// 999 * 12.5% = 124.875, rounds half away from zero to 125.
	if order.CommissionAmount != 125 {
		t.Errorf("commission = %d, want 125", order.CommissionAmount)
	}
}

func TestCreateOrderCommissionSnapshot(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 200, 10)
	item := f.seedItem(t, restaurant.ID, "Burger", 1000)

	first, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	newRate := 20.0
	if _, err := f.catalog.UpdateRestaurant(context.Background(), restaurant.ID, catalogdomain.UpdateRestaurantRequest{CommissionRate: &newRate}); err != nil {
		t.Fatalf("failed to update commission rate: %v", err)
	}

	// The existing order keeps the old rate; only new orders see the change.
	reloaded, err := f.svc.Get(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if reloaded.CommissionRate != 10 || reloaded.CommissionAmount != 100 {
		t.Errorf("snapshot changed: rate=%v amount=%d", reloaded.CommissionRate, reloaded.CommissionAmount)
	}

	second, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("failed to create second order: %v", err)
	}
	if second.CommissionAmount != 200 {
		t.Errorf("second order commission = %d, want 200", second.CommissionAmount)
	}
}

func TestCreateOrderCrossRestaurant(t *testing.T) {
	f := newOrderFixture(t)
	first := f.seedRestaurant(t, 0, 10)
	second := f.seedRestaurant(t, 0, 10)
	own := f.seedItem(t, first.ID, "Ramen", 1200)
	foreign := f.seedItem(t, second.ID, "Sushi", 2200)

	_, err := f.svc.Create(context.Background(), validCreateRequest(first.ID, f.node.Generate(),
		domain.CreateItem{ItemID: own.ID, Quantity: 1},
		domain.CreateItem{ItemID: foreign.ID, Quantity: 1},
	))
	if !errors.Is(err, domain.ErrCrossRestaurantItems) {
		t.Fatalf("expected ErrCrossRestaurantItems, got %v", err)
	}
}

func TestCreateOrderClosedRestaurant(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 0, 10)
	item := f.seedItem(t, restaurant.ID, "Plov", 1800)

	closed := false
	if _, err := f.catalog.UpdateRestaurant(context.Background(), restaurant.ID, catalogdomain.UpdateRestaurantRequest{IsOpen: &closed}); err != nil {
		t.Fatalf("failed to close restaurant: %v", err)
	}

	_, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if !errors.Is(err, domain.ErrRestaurantUnavailable) {
		t.Fatalf("expected ErrRestaurantUnavailable for closed restaurant, got %v", err)
	}

	// Delisted reports the same error so callers cannot tell them apart.
	open, inactive := true, false
	if _, err := f.catalog.UpdateRestaurant(context.Background(), restaurant.ID, catalogdomain.UpdateRestaurantRequest{IsOpen: &open, IsActive: &inactive}); err != nil {
		t.Fatalf("failed to deactivate restaurant: %v", err)
	}
	_, err = f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if !errors.Is(err, domain.ErrRestaurantUnavailable) {
		t.Fatalf("expected ErrRestaurantUnavailable for delisted restaurant, got %v", err)
	}
}

func TestCreateOrderUnavailableItem(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 0, 10)
	item := f.seedItem(t, restaurant.ID, "Lagman", 1600)

	unavailable := false
	if _, err := f.catalog.UpdateMenuItem(context.Background(), item.ID, catalogdomain.UpdateMenuItemRequest{IsAvailable: &unavailable}); err != nil {
		t.Fatalf("failed to disable item: %v", err)
	}

	_, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if !errors.Is(err, domain.ErrItemUnavailable) {
		t.Fatalf("expected ErrItemUnavailable, got %v", err)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 0, 10)
	item := f.seedItem(t, restaurant.ID, "Manti", 900)

	base := func() domain.CreateRequest {
		return validCreateRequest(restaurant.ID, f.node.Generate(), domain.CreateItem{ItemID: item.ID, Quantity: 1})
	}

	t.Run("NoItems", func(t *testing.T) {
		req := base()
		req.Items = nil
		if _, err := f.svc.Create(context.Background(), req); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
	t.Run("TooManyItems", func(t *testing.T) {
		req := base()
		req.Items = nil
		for i := 0; i < 21; i++ {
			req.Items = append(req.Items, domain.CreateItem{ItemID: item.ID, Quantity: 1})
		}
		if _, err := f.svc.Create(context.Background(), req); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
	t.Run("ZeroQuantity", func(t *testing.T) {
		req := base()
		req.Items[0].Quantity = 0
		if _, err := f.svc.Create(context.Background(), req); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
	t.Run("BadPhone", func(t *testing.T) {
		req := base()
		req.ContactPhone = "call me maybe"
		if _, err := f.svc.Create(context.Background(), req); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
	t.Run("PhoneWithSeparators", func(t *testing.T) {
		req := base()
		req.ContactPhone = "+7 (777) 555-44-33"
		if _, err := f.svc.Create(context.Background(), req); err != nil {
			t.Fatalf("expected separators to be accepted, got %v", err)
		}
	})
	t.Run("EmptyAddress", func(t *testing.T) {
		req := base()
		req.DeliveryAddress = "   "
		if _, err := f.svc.Create(context.Background(), req); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestOrderNumbersSequentialPerDay(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 0, 10)
	item := f.seedItem(t, restaurant.ID, "Shashlik", 2000)

	for i, want := range []string{"ORD-20260314-001", "ORD-20260314-002", "ORD-20260314-003"} {
		order, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
			domain.CreateItem{ItemID: item.ID, Quantity: 1},
		))
		if err != nil {
			t.Fatalf("failed to create order %d: %v", i, err)
		}
		if order.OrderNumber != want {
			t.Errorf("order number = %q, want %q", order.OrderNumber, want)
		}
	}

	// A new calendar day restarts the sequence.
	f.clock.Advance(24 * time.Hour)
	order, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	if order.OrderNumber != "ORD-20260315-001" {
		t.Errorf("order number = %q, want ORD-20260315-001", order.OrderNumber)
	}
}

func TestTransitionHappyPath(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 300, 10)
	item := f.seedItem(t, restaurant.ID, "Doner", 1100)

	order, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	for _, status := range []domain.Status{
		domain.StatusConfirmed,
		domain.StatusPreparing,
		domain.StatusOutForDelivery,
		domain.StatusDelivered,
	} {
		order, err = f.svc.Transition(context.Background(), order.ID, domain.TransitionRequest{Status: status})
		if err != nil {
			t.Fatalf("transition to %s failed: %v", status, err)
		}
		if order.Status != status {
			t.Fatalf("status = %s, want %s", order.Status, status)
		}
	}

	if order.DeliveredAt == nil || order.ConfirmedAt == nil {
		t.Error("expected lifecycle timestamps to be stamped")
	}

	restaurantAfter, err := f.catalog.GetRestaurant(context.Background(), restaurant.ID)
	if err != nil {
		t.Fatalf("failed to reload restaurant: %v", err)
	}
	if restaurantAfter.TotalOrders != 1 {
		t.Errorf("total orders = %d, want 1", restaurantAfter.TotalOrders)
	}
	if restaurantAfter.TotalRevenue != 1100 {
		t.Errorf("total revenue = %d, want 1100 (subtotal, not total)", restaurantAfter.TotalRevenue)
	}
}

func TestTransitionIllegalEdges(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 0, 10)
	item := f.seedItem(t, restaurant.ID, "Kebab", 1400)

	order, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	if _, err := f.svc.Transition(context.Background(), order.ID, domain.TransitionRequest{Status: domain.StatusDelivered}); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition for skip-ahead, got %v", err)
	}

	if _, err := f.svc.Transition(context.Background(), order.ID, domain.TransitionRequest{Status: domain.StatusCancelled}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// Terminal states reject everything else.
	if _, err := f.svc.Transition(context.Background(), order.ID, domain.TransitionRequest{Status: domain.StatusConfirmed}); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition out of cancelled, got %v", err)
	}
}

func TestTransitionSameStateIsNoOp(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 0, 10)
	item := f.seedItem(t, restaurant.ID, "Baursak", 300)

	order, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	for _, status := range []domain.Status{domain.StatusConfirmed, domain.StatusPreparing, domain.StatusOutForDelivery, domain.StatusDelivered} {
		if _, err := f.svc.Transition(context.Background(), order.ID, domain.TransitionRequest{Status: status}); err != nil {
			t.Fatalf("transition to %s failed: %v", status, err)
		}
	}

	// Repeating delivered succeeds without touching aggregates again.
	if _, err := f.svc.Transition(context.Background(), order.ID, domain.TransitionRequest{Status: domain.StatusDelivered}); err != nil {
		t.Fatalf("repeated delivered call failed: %v", err)
	}

	restaurantAfter, err := f.catalog.GetRestaurant(context.Background(), restaurant.ID)
	if err != nil {
		t.Fatalf("failed to reload restaurant: %v", err)
	}
	if restaurantAfter.TotalOrders != 1 {
		t.Errorf("total orders = %d, want 1 after repeated delivered", restaurantAfter.TotalOrders)
	}
}

func TestCancelRecordsReason(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 0, 10)
	item := f.seedItem(t, restaurant.ID, "Samsa", 450)

	order, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	reason := "customer_request"
	cancelled, err := f.svc.Transition(context.Background(), order.ID, domain.TransitionRequest{
		Status: domain.StatusCancelled,
		Reason: &reason,
	})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.CancelReason == nil || *cancelled.CancelReason != reason {
		t.Errorf("cancel reason = %v, want %q", cancelled.CancelReason, reason)
	}
	if cancelled.CancelledAt == nil {
		t.Error("expected cancelled_at to be stamped")
	}
}

func TestCancelStaleSweep(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 0, 10)
	item := f.seedItem(t, restaurant.ID, "Tea", 250)

	stale, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("failed to create stale order: %v", err)
	}

	confirmed, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("failed to create confirmed order: %v", err)
	}
	if _, err := f.svc.Transition(context.Background(), confirmed.ID, domain.TransitionRequest{Status: domain.StatusConfirmed}); err != nil {
		t.Fatalf("failed to confirm order: %v", err)
	}

	f.clock.Advance(3 * time.Hour)

	fresh, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("failed to create fresh order: %v", err)
	}

	cancelled, err := f.svc.CancelStale(context.Background(), 2*time.Hour)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("sweep cancelled %d orders, want 1", cancelled)
	}

	swept, err := f.svc.Get(context.Background(), stale.ID)
	if err != nil {
		t.Fatalf("failed to reload swept order: %v", err)
	}
	if swept.Status != domain.StatusCancelled {
		t.Errorf("stale order status = %s, want cancelled", swept.Status)
	}
	if swept.CancelReason == nil || *swept.CancelReason != domain.CancelReasonPaymentTimeout {
		t.Errorf("cancel reason = %v, want payment_timeout", swept.CancelReason)
	}

	untouched, err := f.svc.Get(context.Background(), fresh.ID)
	if err != nil {
		t.Fatalf("failed to reload fresh order: %v", err)
	}
	if untouched.Status != domain.StatusAwaitingPayment {
		t.Errorf("fresh order status = %s, want awaiting_payment", untouched.Status)
	}

	// A second run finds nothing left past the threshold.
	again, err := f.svc.CancelStale(context.Background(), 2*time.Hour)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if again != 0 {
		t.Errorf("second sweep cancelled %d orders, want 0", again)
	}
}

func TestCreateOrderWritesAuditEntry(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 0, 10)
	item := f.seedItem(t, restaurant.ID, "Kazy", 2500)

	order, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	var count int64
	err = f.db.Model(&auditdomain.AuditEntry{}).
		Where("action = ? AND target_id = ?", auditdomain.ActionOrderCreated, order.ID.String()).
		Count(&count).Error
	if err != nil {
		t.Fatalf("failed to count audit entries: %v", err)
	}
	if count != 1 {
		t.Errorf("audit entries = %d, want 1", count)
	}
}

type failingAggregatesRepo struct {
	domain.Repository
	err error
}

func (r failingAggregatesRepo) ApplyDeliveredAggregates(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, subtotal int64) error {
	return r.err
}

type failingLineItemsRepo struct {
	domain.Repository
	err error
}

func (r failingLineItemsRepo) InsertLineItems(ctx context.Context, db *gorm.DB, items []domain.OrderLineItem) error {
	return r.err
}

func TestTransitionDeliveredRollsBackOnAggregateFailure(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 300, 10)
	item := f.seedItem(t, restaurant.ID, "Lagman", 1800)

	order, err := f.svc.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	for _, status := range []domain.Status{
		domain.StatusConfirmed,
		domain.StatusPreparing,
		domain.StatusOutForDelivery,
	} {
		if order, err = f.svc.Transition(context.Background(), order.ID, domain.TransitionRequest{Status: status}); err != nil {
			t.Fatalf("transition to %s failed: %v", status, err)
		}
	}

	broken := f.withRepo(failingAggregatesRepo{
		Repository: f.params.Repo,
		err:        errors.New("aggregate write refused"),
	})
	if _, err := broken.Transition(context.Background(), order.ID, domain.TransitionRequest{Status: domain.StatusDelivered}); err == nil {
		t.Fatal("expected transition to fail when the aggregate update fails")
	}

	// The status flip must roll back with the failed aggregate write.
	current, err := f.svc.Get(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if current.Status != domain.StatusOutForDelivery {
		t.Fatalf("status = %s, want %s after rollback", current.Status, domain.StatusOutForDelivery)
	}
	restaurantAfter, err := f.catalog.GetRestaurant(context.Background(), restaurant.ID)
	if err != nil {
		t.Fatalf("failed to reload restaurant: %v", err)
	}
	if restaurantAfter.TotalOrders != 0 {
		t.Errorf("total orders = %d, want 0 after rollback", restaurantAfter.TotalOrders)
	}

	// The retry goes through the full transition and counts exactly once.
	if _, err := f.svc.Transition(context.Background(), order.ID, domain.TransitionRequest{Status: domain.StatusDelivered}); err != nil {
		t.Fatalf("retried transition failed: %v", err)
	}
	restaurantAfter, err = f.catalog.GetRestaurant(context.Background(), restaurant.ID)
	if err != nil {
		t.Fatalf("failed to reload restaurant: %v", err)
	}
	if restaurantAfter.TotalOrders != 1 {
		t.Errorf("total orders = %d, want 1 after retry", restaurantAfter.TotalOrders)
	}
	if restaurantAfter.TotalRevenue != 1800 {
		t.Errorf("total revenue = %d, want 1800 after retry", restaurantAfter.TotalRevenue)
	}
}

func TestCreateOrderRollsBackOnLineItemFailure(t *testing.T) {
	f := newOrderFixture(t)
	restaurant := f.seedRestaurant(t, 500, 10)
	item := f.seedItem(t, restaurant.ID, "Plov", 1600)

	broken := f.withRepo(failingLineItemsRepo{
		Repository: f.params.Repo,
		err:        errors.New("line item insert refused"),
	})
	_, err := broken.Create(context.Background(), validCreateRequest(restaurant.ID, f.node.Generate(),
		domain.CreateItem{ItemID: item.ID, Quantity: 2},
	))
	if !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("err = %v, want %v", err, domain.ErrPersistenceFailure)
	}

	var orders int64
	if err := f.db.Model(&domain.Order{}).Count(&orders).Error; err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	if orders != 0 {
		t.Errorf("orders = %d, want 0 after rollback", orders)
	}
	var lineItems int64
	if err := f.db.Model(&domain.OrderLineItem{}).Count(&lineItems).Error; err != nil {
		t.Fatalf("failed to count line items: %v", err)
	}
	if lineItems != 0 {
		t.Errorf("line items = %d, want 0 after rollback", lineItems)
	}
	var auditEntries int64
	err = f.db.Model(&auditdomain.AuditEntry{}).
		Where("target_type = ?", "order").
		Count(&auditEntries).Error
	if err != nil {
		t.Fatalf("failed to count audit entries: %v", err)
	}
	if auditEntries != 0 {
		t.Errorf("order audit entries = %d, want 0 for a failed creation", auditEntries)
	}
}
