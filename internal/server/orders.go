package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	authdomain "github.com/mealgrid/mealgrid/internal/auth/domain"
	"github.com/mealgrid/mealgrid/internal/authorization"
	orderdomain "github.com/mealgrid/mealgrid/internal/order/domain"
)

func (s *Server) CreateOrder(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if err := s.authorize(c, authorization.ObjectOrder, authorization.ActionOrderCreate); err != nil {
		AbortWithError(c, err)
		return
	}

	var req orderdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.CustomerID = user.ID

	order, err := s.orderSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":           order.ID.String(),
		"order_number": order.OrderNumber,
		"status":       string(order.Status),
		"total":        order.Total,
	})
}

func (s *Server) TransitionOrder(c *gin.Context) {
	orderID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req orderdomain.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	// Cancelling is its own capability so customers can abandon an unpaid
	// order without holding the staff transition right.
	action := authorization.ActionOrderTransition
	if req.Status == orderdomain.StatusCancelled {
		action = authorization.ActionOrderCancel
	}
	if err := s.authorize(c, authorization.ObjectOrder, action); err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.requireOrderAccess(c, orderID, req.Status); err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.orderSvc.Transition(c.Request.Context(), orderID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (s *Server) GetOrder(c *gin.Context) {
	orderID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.authorize(c, authorization.ObjectOrder, authorization.ActionOrderView); err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.checkOrderOwnership(c, order); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (s *Server) ListOrders(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if err := s.authorize(c, authorization.ObjectOrder, authorization.ActionOrderView); err != nil {
		AbortWithError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))

	var (
		orders []orderdomain.Order
		err    error
	)
	switch user.Role {
	case authdomain.RoleCustomer:
		orders, err = s.orderSvc.ListByCustomer(c.Request.Context(), user.ID, limit)
	case authdomain.RoleRestaurant:
		if user.RestaurantID == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		orders, err = s.orderSvc.ListByRestaurant(c.Request.Context(), *user.RestaurantID, limit)
	case authdomain.RoleAdmin:
		restaurantID, parseErr := parseID(c.Query("restaurant_id"))
		if parseErr != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		orders, err = s.orderSvc.ListByRestaurant(c.Request.Context(), restaurantID, limit)
	default:
		AbortWithError(c, ErrForbidden)
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// requireOrderAccess loads the order and applies the ownership rule for
// transition calls: restaurant staff act only on their own restaurant's
// orders, customers only cancel their own, admins act anywhere.
func (s *Server) requireOrderAccess(c *gin.Context, orderID snowflake.ID, target orderdomain.Status) error {
	user := currentUser(c)
	if user == nil {
		return ErrUnauthorized
	}
	if user.Role == authdomain.RoleAdmin {
		return nil
	}
	order, err := s.orderSvc.Get(c.Request.Context(), orderID)
	if err != nil {
		return err
	}
	if user.Role == authdomain.RoleRestaurant && user.RestaurantID != nil && *user.RestaurantID == order.RestaurantID {
		return nil
	}
	if user.Role == authdomain.RoleCustomer && target == orderdomain.StatusCancelled && order.CustomerID == user.ID {
		return nil
	}
	return ErrForbidden
}

func (s *Server) checkOrderOwnership(c *gin.Context, order *orderdomain.Order) error {
	user := currentUser(c)
	if user == nil {
		return ErrUnauthorized
	}
	switch user.Role {
	case authdomain.RoleAdmin:
		return nil
	case authdomain.RoleCustomer:
		if order.CustomerID == user.ID {
			return nil
		}
	case authdomain.RoleRestaurant:
		if user.RestaurantID != nil && *user.RestaurantID == order.RestaurantID {
			return nil
		}
	}
	return ErrForbidden
}

func (s *Server) authorize(c *gin.Context, object, action string) error {
	user := currentUser(c)
	if user == nil {
		return ErrUnauthorized
	}
	return s.authzSvc.Authorize(c.Request.Context(), "user:"+user.ID.String(), object, action)
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, ErrInvalidRequest
	}
	return id, nil
}
