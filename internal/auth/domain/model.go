package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleRestaurant Role = "restaurant"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleRestaurant, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID           snowflake.ID  `json:"id" gorm:"primaryKey"`
	Email        string        `json:"email" gorm:"type:text;not null;uniqueIndex:ux_users_email"`
	PasswordHash string        `json:"-" gorm:"column:password_hash;type:text;not null"`
	Role         Role          `json:"role" gorm:"type:text;not null"`
	RestaurantID *snowflake.ID `json:"restaurant_id,omitempty" gorm:"column:restaurant_id"`
	IsActive     bool          `json:"is_active" gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time     `json:"updated_at" gorm:"not null"`
}

func (User) TableName() string { return "users" }

// Session tokens are opaque UUIDs. Role is never stored on the session:
// authentication re-reads the user row so role changes apply immediately.
type Session struct {
	Token     string       `json:"token" gorm:"primaryKey;type:text"`
	UserID    snowflake.ID `json:"user_id" gorm:"column:user_id;not null;index"`
	ExpiresAt time.Time    `json:"expires_at" gorm:"not null"`
	RevokedAt *time.Time   `json:"revoked_at,omitempty"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (Session) TableName() string { return "sessions" }
