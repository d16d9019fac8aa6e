package ordernumber

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mealgrid/mealgrid/internal/config"
)

// Counter holds one row per calendar day in the operator timezone. The
// upsert below is the only writer.
type Counter struct {
	Day   string `gorm:"primaryKey;type:text"`
	Value int64  `gorm:"not null"`
}

func (Counter) TableName() string { return "order_number_counters" }

// Generator issues sequential human-readable order numbers of the form
// PREFIX-YYYYMMDD-NNN, restarting at 1 each calendar day.
type Generator struct {
	prefix   string
	location *time.Location
}

func NewGenerator(cfg config.Config) (*Generator, error) {
	location, err := time.LoadLocation(cfg.OperatorTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid operator timezone %q: %w", cfg.OperatorTimezone, err)
	}
	return &Generator{
		prefix:   cfg.OrderNumberPrefix,
		location: location,
	}, nil
}

// Next reserves the next sequence number for the day of now. The upsert
// with RETURNING is atomic, so two concurrent calls get distinct numbers.
func (g *Generator) Next(ctx context.Context, db *gorm.DB, now time.Time) (string, error) {
	day := now.In(g.location).Format("20060102")

	var value int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO order_number_counters (day, value)
		 VALUES (?, 1)
		 ON CONFLICT (day) DO UPDATE SET value = order_number_counters.value + 1
		 RETURNING value`,
		day,
	).Scan(&value).Error
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%03d", g.prefix, day, value), nil
}
