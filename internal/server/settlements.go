package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	authdomain "github.com/mealgrid/mealgrid/internal/auth/domain"
	"github.com/mealgrid/mealgrid/internal/authorization"
	settlementdomain "github.com/mealgrid/mealgrid/internal/settlement/domain"
)

func (s *Server) GenerateSettlement(c *gin.Context) {
	if err := s.authorize(c, authorization.ObjectSettlement, authorization.ActionSettlementGenerate); err != nil {
		AbortWithError(c, err)
		return
	}

	var req settlementdomain.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	settlement, err := s.settlementSvc.Generate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, settlement)
}

func (s *Server) MarkSettlementPaid(c *gin.Context) {
	settlementID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.authorize(c, authorization.ObjectSettlement, authorization.ActionSettlementMarkPaid); err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		PaymentReference string `json:"payment_reference"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	settlement, err := s.settlementSvc.MarkPaid(c.Request.Context(), settlementID, req.PaymentReference)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, settlement)
}

func (s *Server) GetSettlement(c *gin.Context) {
	settlementID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.authorize(c, authorization.ObjectSettlement, authorization.ActionSettlementView); err != nil {
		AbortWithError(c, err)
		return
	}

	settlement, err := s.settlementSvc.Get(c.Request.Context(), settlementID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.checkSettlementOwnership(c, settlement); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, settlement)
}

func (s *Server) ListSettlements(c *gin.Context) {
	if err := s.authorize(c, authorization.ObjectSettlement, authorization.ActionSettlementView); err != nil {
		AbortWithError(c, err)
		return
	}

	restaurantID, err := s.resolveSettlementRestaurant(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	settlements, err := s.settlementSvc.ListByRestaurant(c.Request.Context(), restaurantID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"settlements": settlements})
}

func (s *Server) checkSettlementOwnership(c *gin.Context, settlement *settlementdomain.Settlement) error {
	user := currentUser(c)
	if user == nil {
		return ErrUnauthorized
	}
	if user.Role == authdomain.RoleAdmin {
		return nil
	}
	if user.Role == authdomain.RoleRestaurant && user.RestaurantID != nil && *user.RestaurantID == settlement.RestaurantID {
		return nil
	}
	return ErrForbidden
}

// resolveSettlementRestaurant picks the restaurant to list for: staff are
// pinned to their own restaurant, admins name one explicitly.
func (s *Server) resolveSettlementRestaurant(c *gin.Context) (snowflake.ID, error) {
	user := currentUser(c)
	if user == nil {
		return 0, ErrUnauthorized
	}
	if user.Role == authdomain.RoleRestaurant {
		if user.RestaurantID == nil {
			return 0, ErrForbidden
		}
		return *user.RestaurantID, nil
	}
	return parseID(c.Query("restaurant_id"))
}
