package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/snowflake"

	authdomain "github.com/mealgrid/mealgrid/internal/auth/domain"
	"github.com/mealgrid/mealgrid/internal/authorization"
	catalogdomain "github.com/mealgrid/mealgrid/internal/catalog/domain"
	orderdomain "github.com/mealgrid/mealgrid/internal/order/domain"
	settlementdomain "github.com/mealgrid/mealgrid/internal/settlement/domain"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantType   string
	}{
		{authdomain.ErrInvalidCredentials, http.StatusUnauthorized, "unauthenticated"},
		{authdomain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{authdomain.ErrUserInactive, http.StatusUnauthorized, "unauthenticated"},
		{authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{ErrForbidden, http.StatusForbidden, "forbidden"},
		{orderdomain.ErrValidation, http.StatusBadRequest, "validation_error"},
		{settlementdomain.ErrInvalidPeriod, http.StatusBadRequest, "validation_error"},
		{catalogdomain.ErrInvalidCommission, http.StatusBadRequest, "validation_error"},
		{orderdomain.ErrOrderNotFound, http.StatusNotFound, "not_found"},
		{catalogdomain.ErrRestaurantNotFound, http.StatusNotFound, "not_found"},
		{settlementdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{orderdomain.ErrItemUnavailable, http.StatusUnprocessableEntity, "item_unavailable"},
		{orderdomain.ErrRestaurantUnavailable, http.StatusUnprocessableEntity, "restaurant_unavailable"},
		{orderdomain.ErrCrossRestaurantItems, http.StatusUnprocessableEntity, "cross_restaurant_items"},
		{settlementdomain.ErrNothingToSettle, http.StatusUnprocessableEntity, "nothing_to_settle"},
		{orderdomain.ErrIllegalTransition, http.StatusConflict, "illegal_transition"},
		{settlementdomain.ErrAlreadyExists, http.StatusConflict, "already_exists"},
		{settlementdomain.ErrAlreadyPaid, http.StatusConflict, "already_paid"},
		{catalogdomain.ErrDuplicateRestaurant, http.StatusConflict, "conflict"},
		{orderdomain.ErrPersistenceFailure, http.StatusServiceUnavailable, "persistence_failure"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.wantType+"/"+tc.err.Error(), func(t *testing.T) {
			status, payload := mapError(tc.err)
			if status != tc.wantStatus {
				t.Errorf("status = %d, want %d", status, tc.wantStatus)
			}
			if payload.Type != tc.wantType {
				t.Errorf("type = %q, want %q", payload.Type, tc.wantType)
			}
		})
	}
}

func TestMapErrorWrapped(t *testing.T) {
	wrapped := fmt.Errorf("creating order: %w", orderdomain.ErrIllegalTransition)
	status, payload := mapError(wrapped)
	if status != http.StatusConflict || payload.Type != "illegal_transition" {
		t.Fatalf("wrapped error mapped to %d/%s", status, payload.Type)
	}
}

func TestMapErrorSettlementDetails(t *testing.T) {
	id := snowflake.ID(12345)

	status, payload := mapError(&settlementdomain.AlreadyExistsError{ID: id, Status: settlementdomain.StatusPending})
	if status != http.StatusConflict {
		t.Fatalf("status = %d, want 409", status)
	}
	if payload.Details["settlement_id"] != id.String() || payload.Details["status"] != "pending" {
		t.Errorf("unexpected details: %v", payload.Details)
	}

	_, payload = mapError(&settlementdomain.AlreadyPaidError{ID: id, PaymentReference: "WIRE-7"})
	if payload.Details["payment_reference"] != "WIRE-7" {
		t.Errorf("unexpected details: %v", payload.Details)
	}
}

func TestValidationFieldExtraction(t *testing.T) {
	err := fmt.Errorf("%w: contact_phone", orderdomain.ErrValidation)
	status, payload := mapError(err)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if payload.Details["field"] != "contact_phone" {
		t.Errorf("field = %v, want contact_phone", payload.Details["field"])
	}
}
