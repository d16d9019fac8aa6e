package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	authdomain "github.com/mealgrid/mealgrid/internal/auth/domain"
	"github.com/mealgrid/mealgrid/internal/config"
)

// EnsureAdmin seeds the first admin account on an empty database so a fresh
// install is usable without manual SQL. It is a no-op when the account
// already exists or when no bootstrap password is configured.
func EnsureAdmin(db *gorm.DB, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	email := strings.ToLower(strings.TrimSpace(cfg.BootstrapAdminEmail))
	if email == "" || cfg.BootstrapAdminPassword == "" {
		return nil
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user authdomain.User
		err := tx.WithContext(ctx).Where("email = ?", email).First(&user).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.BootstrapAdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		user = authdomain.User{
			ID:           node.Generate(),
			Email:        email,
			PasswordHash: string(hashed),
			Role:         authdomain.RoleAdmin,
			IsActive:     true,
		}
		return tx.WithContext(ctx).Create(&user).Error
	})
}
