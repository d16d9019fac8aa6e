package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrder      = "order"
	ObjectSettlement = "settlement"
	ObjectAuditLog   = "audit_log"
	ObjectRestaurant = "restaurant"
	ObjectMenuItem   = "menu_item"
)

const (
	ActionOrderCreate     = "order.create"
	ActionOrderView       = "order.view"
	ActionOrderTransition = "order.transition"
	ActionOrderCancel     = "order.cancel"

	ActionSettlementView     = "settlement.view"
	ActionSettlementGenerate = "settlement.generate"
	ActionSettlementMarkPaid = "settlement.mark_paid"

	ActionAuditLogView = "audit_log.view"

	ActionRestaurantManage = "restaurant.manage"
	ActionMenuItemManage   = "menu_item.manage"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, err := s.resolveActor(ctx, actor)
	if err != nil {
		return err
	}
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string) (string, string, error) {
	if actor == "system" {
		return actor, "role:system", nil
	}
	if strings.HasPrefix(actor, "user:") {
		userIDRaw := strings.TrimPrefix(actor, "user:")
		userID, err := snowflake.ParseString(userIDRaw)
		if err != nil || userID == 0 {
			return "", "", ErrInvalidActor
		}
		role, err := s.roleForUser(ctx, userID)
		if err != nil {
			return "", "", err
		}
		return actor, fmt.Sprintf("role:%s", strings.ToLower(role)), nil
	}
	return "", "", ErrInvalidActor
}

func (s *ServiceImpl) roleForUser(ctx context.Context, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM users
		 WHERE id = ? AND is_active
		 LIMIT 1`,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Customer permissions
		{"role:customer", ObjectOrder, ActionOrderCreate},
		{"role:customer", ObjectOrder, ActionOrderView},
		{"role:customer", ObjectOrder, ActionOrderCancel},

		// Restaurant staff permissions
		{"role:restaurant", ObjectOrder, ActionOrderView},
		{"role:restaurant", ObjectOrder, ActionOrderTransition},
		{"role:restaurant", ObjectSettlement, ActionSettlementView},
		{"role:restaurant", ObjectRestaurant, ActionRestaurantManage},
		{"role:restaurant", ObjectMenuItem, ActionMenuItemManage},

		// Admin permissions
		{"role:admin", ObjectOrder, ActionOrderCreate},
		{"role:admin", ObjectOrder, ActionOrderView},
		{"role:admin", ObjectOrder, ActionOrderTransition},
		{"role:admin", ObjectOrder, ActionOrderCancel},
		{"role:admin", ObjectSettlement, ActionSettlementView},
		{"role:admin", ObjectSettlement, ActionSettlementGenerate},
		{"role:admin", ObjectSettlement, ActionSettlementMarkPaid},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
		{"role:admin", ObjectRestaurant, ActionRestaurantManage},
		{"role:admin", ObjectMenuItem, ActionMenuItemManage},

		// System permissions (scheduler jobs)
		{"role:system", ObjectOrder, ActionOrderCancel},
		{"role:system", ObjectSettlement, ActionSettlementGenerate},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
