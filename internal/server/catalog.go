package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	authdomain "github.com/mealgrid/mealgrid/internal/auth/domain"
	"github.com/mealgrid/mealgrid/internal/authorization"
	catalogdomain "github.com/mealgrid/mealgrid/internal/catalog/domain"
)

func (s *Server) CreateRestaurant(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	// Only admins create restaurants; staff manage an existing one.
	if user.Role != authdomain.RoleAdmin {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req catalogdomain.CreateRestaurantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	restaurant, err := s.catalogSvc.CreateRestaurant(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, restaurant)
}

func (s *Server) UpdateRestaurant(c *gin.Context) {
	restaurantID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.requireRestaurantAccess(c, restaurantID); err != nil {
		AbortWithError(c, err)
		return
	}

	var req catalogdomain.UpdateRestaurantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	restaurant, err := s.catalogSvc.UpdateRestaurant(c.Request.Context(), restaurantID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, restaurant)
}

func (s *Server) GetRestaurant(c *gin.Context) {
	restaurantID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	restaurant, err := s.catalogSvc.GetRestaurant(c.Request.Context(), restaurantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, restaurant)
}

func (s *Server) ListMenuItems(c *gin.Context) {
	restaurantID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	items, err := s.catalogSvc.ListMenuItems(c.Request.Context(), restaurantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) CreateMenuItem(c *gin.Context) {
	var req catalogdomain.CreateMenuItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.requireRestaurantAccess(c, req.RestaurantID); err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.catalogSvc.CreateMenuItem(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

func (s *Server) UpdateMenuItem(c *gin.Context) {
	itemID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req catalogdomain.UpdateMenuItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	user := currentUser(c)
	if user == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if user.Role != authdomain.RoleAdmin {
		existing, err := s.catalogSvc.GetMenuItem(c.Request.Context(), itemID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if existing.RestaurantID != mustRestaurantID(user) {
			AbortWithError(c, ErrForbidden)
			return
		}
	}

	item, err := s.catalogSvc.UpdateMenuItem(c.Request.Context(), itemID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// requireRestaurantAccess limits staff to their own restaurant. Admins pass
// for any restaurant. Authorization object-level checks run first so the
// casbin policy stays the single source for role capability.
func (s *Server) requireRestaurantAccess(c *gin.Context, restaurantID snowflake.ID) error {
	if err := s.authorize(c, authorization.ObjectRestaurant, authorization.ActionRestaurantManage); err != nil {
		return err
	}
	user := currentUser(c)
	if user == nil {
		return ErrUnauthorized
	}
	if user.Role == authdomain.RoleAdmin {
		return nil
	}
	if user.RestaurantID != nil && *user.RestaurantID == restaurantID {
		return nil
	}
	return ErrForbidden
}

func mustRestaurantID(user *authdomain.User) snowflake.ID {
	if user.RestaurantID == nil {
		return 0
	}
	return *user.RestaurantID
}
