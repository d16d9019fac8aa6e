package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	auditdomain "github.com/mealgrid/mealgrid/internal/audit/domain"
	authdomain "github.com/mealgrid/mealgrid/internal/auth/domain"
	"github.com/mealgrid/mealgrid/internal/authorization"
	catalogdomain "github.com/mealgrid/mealgrid/internal/catalog/domain"
	orderdomain "github.com/mealgrid/mealgrid/internal/order/domain"
	settlementdomain "github.com/mealgrid/mealgrid/internal/settlement/domain"
)

type errorPayload struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}

	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrUnauthenticated),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrUserInactive):
		return http.StatusUnauthorized, errorPayload{Type: "unauthenticated", Message: "unauthenticated"}

	// A forbidden response never names the roles that would have passed.
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "forbidden"}

	case errors.Is(err, orderdomain.ErrValidation):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Details: map[string]any{"field": validationField(err)},
		}

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, settlementdomain.ErrInvalidPeriod),
		errors.Is(err, settlementdomain.ErrInvalidPayment),
		errors.Is(err, catalogdomain.ErrInvalidName),
		errors.Is(err, catalogdomain.ErrInvalidPrice),
		errors.Is(err, catalogdomain.ErrInvalidDeliveryFee),
		errors.Is(err, catalogdomain.ErrInvalidCommission),
		errors.Is(err, catalogdomain.ErrEmptyQuoteRequest),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: err.Error()}

	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, orderdomain.ErrItemNotFound),
		errors.Is(err, catalogdomain.ErrRestaurantNotFound),
		errors.Is(err, catalogdomain.ErrMenuItemNotFound),
		errors.Is(err, settlementdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}

	case errors.Is(err, orderdomain.ErrItemUnavailable):
		return http.StatusUnprocessableEntity, errorPayload{Type: "item_unavailable", Message: "item is unavailable"}

	// Closed and delisted restaurants report the same message.
	case errors.Is(err, orderdomain.ErrRestaurantUnavailable):
		return http.StatusUnprocessableEntity, errorPayload{Type: "restaurant_unavailable", Message: "restaurant is closed"}

	case errors.Is(err, orderdomain.ErrCrossRestaurantItems):
		return http.StatusUnprocessableEntity, errorPayload{Type: "cross_restaurant_items", Message: "items belong to multiple restaurants"}

	case errors.Is(err, settlementdomain.ErrNothingToSettle):
		return http.StatusUnprocessableEntity, errorPayload{Type: "nothing_to_settle", Message: "no delivered orders in period"}

	case errors.Is(err, orderdomain.ErrIllegalTransition):
		return http.StatusConflict, errorPayload{Type: "illegal_transition", Message: "illegal status transition"}

	case errors.Is(err, settlementdomain.ErrAlreadyExists):
		payload := errorPayload{Type: "already_exists", Message: "settlement already exists for period"}
		var exists *settlementdomain.AlreadyExistsError
		if errors.As(err, &exists) {
			payload.Details = map[string]any{
				"settlement_id": exists.ID.String(),
				"status":        string(exists.Status),
			}
		}
		return http.StatusConflict, payload

	case errors.Is(err, settlementdomain.ErrAlreadyPaid):
		payload := errorPayload{Type: "already_paid", Message: "settlement already paid"}
		var paid *settlementdomain.AlreadyPaidError
		if errors.As(err, &paid) {
			payload.Details = map[string]any{
				"settlement_id":     paid.ID.String(),
				"payment_reference": paid.PaymentReference,
			}
		}
		return http.StatusConflict, payload

	case errors.Is(err, catalogdomain.ErrDuplicateRestaurant):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: "conflict"}

	case errors.Is(err, orderdomain.ErrPersistenceFailure):
		return http.StatusServiceUnavailable, errorPayload{Type: "persistence_failure", Message: "storage unavailable, retry later"}

	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

// validationField pulls the offending field out of a wrapped validation
// error ("validation_error: contact_phone").
func validationField(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return "request"
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "server_error", payload.Type
	}
	return "client_error", payload.Type
}
