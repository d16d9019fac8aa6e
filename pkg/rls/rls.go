// Package rls scopes a transaction to one restaurant for Postgres row-level
// security policies. The storage engine enforces tenancy even if an
// application-level check is bypassed.
package rls

import (
	"fmt"

	"gorm.io/gorm"
)

func WithRestaurant(tx *gorm.DB, restaurantID int64) error {
	return tx.Exec(
		"SET LOCAL app.current_restaurant_id = ?",
		fmt.Sprintf("%d", restaurantID),
	).Error
}
