package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	auditdomain "github.com/mealgrid/mealgrid/internal/audit/domain"
	authdomain "github.com/mealgrid/mealgrid/internal/auth/domain"
	catalogdomain "github.com/mealgrid/mealgrid/internal/catalog/domain"
	"github.com/mealgrid/mealgrid/internal/config"
	orderdomain "github.com/mealgrid/mealgrid/internal/order/domain"
	"github.com/mealgrid/mealgrid/internal/order/ordernumber"
	"github.com/mealgrid/mealgrid/internal/seed"
	settlementdomain "github.com/mealgrid/mealgrid/internal/settlement/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-Postgres deployments (local sqlite) skip the SQL
			// migrations: the guard triggers and RLS policies there are
			// Postgres-specific, the tables are not.
			if err := conn.AutoMigrate(
				&authdomain.User{},
				&authdomain.Session{},
				&catalogdomain.Restaurant{},
				&catalogdomain.MenuItem{},
				&orderdomain.Order{},
				&orderdomain.OrderLineItem{},
				&ordernumber.Counter{},
				&settlementdomain.Settlement{},
				&auditdomain.AuditEntry{},
			); err != nil {
				return err
			}
		}

		return seed.EnsureAdmin(conn, cfg)
	}),
)
