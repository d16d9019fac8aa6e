package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mealgrid/mealgrid/internal/audit/domain"
	"github.com/mealgrid/mealgrid/pkg/log/ctxlogger"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Audit domain.Service
	Store Store
}

// Exporter archives one UTC day of audit entries as a snappy-compressed
// JSON-lines object. Re-running a day that was already archived is a no-op.
type Exporter struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	audit domain.Service
	store Store
}

func NewExporter(p Params) *Exporter {
	return &Exporter{
		db:    p.DB,
		log:   p.Log.Named("audit.export"),
		repo:  p.Repo,
		audit: p.Audit,
		store: p.Store,
	}
}

// Key returns the object key for a given day's archive.
func Key(day time.Time) string {
	return fmt.Sprintf("audit/%s.jsonl.snappy", day.UTC().Format("2006-01-02"))
}

// ExportDay archives the audit entries created on the given UTC day.
// The day boundary is [00:00, 24:00) UTC regardless of the operator
// timezone, so archive keys are stable across configuration changes.
func (e *Exporter) ExportDay(ctx context.Context, day time.Time) error {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	key := Key(from)
	logger := ctxlogger.WithContext(ctx, e.log).With(zap.String("key", key))

	exists, err := e.store.Exists(ctx, key)
	if err != nil {
		e.recordOutcome(ctx, domain.ActionExportFailed, key, 0, err)
		return err
	}
	if exists {
		logger.Info("audit export already archived, skipping")
		e.recordOutcome(ctx, domain.ActionExportSkipped, key, 0, nil)
		return nil
	}

	entries, err := e.repo.ListWindow(ctx, e.db, from, to)
	if err != nil {
		e.recordOutcome(ctx, domain.ActionExportFailed, key, 0, err)
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			e.recordOutcome(ctx, domain.ActionExportFailed, key, len(entries), err)
			return err
		}
	}

	compressed := snappy.Encode(nil, buf.Bytes())
	if err := e.store.Put(ctx, key, compressed); err != nil {
		if err == ErrKeyExists {
			logger.Info("audit export raced an existing archive, skipping")
			e.recordOutcome(ctx, domain.ActionExportSkipped, key, len(entries), nil)
			return nil
		}
		e.recordOutcome(ctx, domain.ActionExportFailed, key, len(entries), err)
		return err
	}

	logger.Info("audit export archived",
		zap.Int("entries", len(entries)),
		zap.Int("bytes", len(compressed)),
	)
	if err := e.audit.Record(ctx, domain.ActionExportCompleted, "audit_export", &key, map[string]any{
		"entry_count": len(entries),
		"byte_size":   len(compressed),
	}); err != nil {
		e.log.Warn("failed to record export outcome", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (e *Exporter) recordOutcome(ctx context.Context, action, key string, count int, cause error) {
	metadata := map[string]any{"entry_count": count}
	if cause != nil {
		metadata["error"] = cause.Error()
	}
	if err := e.audit.Record(ctx, action, "audit_export", &key, metadata); err != nil {
		e.log.Warn("failed to record export outcome", zap.String("key", key), zap.Error(err))
	}
}
