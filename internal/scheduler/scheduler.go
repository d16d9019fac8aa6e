package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/mealgrid/mealgrid/internal/actorctx"
	auditdomain "github.com/mealgrid/mealgrid/internal/audit/domain"
	"github.com/mealgrid/mealgrid/internal/audit/export"
	"github.com/mealgrid/mealgrid/internal/clock"
	"github.com/mealgrid/mealgrid/internal/config"
	obsmetrics "github.com/mealgrid/mealgrid/internal/observability/metrics"
	orderdomain "github.com/mealgrid/mealgrid/internal/order/domain"
)

const (
	JobCancelStaleOrders = "cancel_stale_orders"
	JobAuditExport       = "audit_export"
)

const jobTimeout = 30 * time.Second

var ErrInvalidConfig = errors.New("scheduler requires its collaborators")

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Quotas   *config.QuotaConfigHolder
	OrderSvc orderdomain.Service
	Exporter *export.Exporter
	Metrics  *obsmetrics.SchedulerMetrics
}

type Scheduler struct {
	log      *zap.Logger
	clock    clock.Clock
	quotas   *config.QuotaConfigHolder
	orderSvc orderdomain.Service
	exporter *export.Exporter
	metrics  *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Quotas == nil || p.OrderSvc == nil || p.Exporter == nil || p.Metrics == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		clock:    p.Clock,
		quotas:   p.Quotas,
		orderSvc: p.OrderSvc,
		exporter: p.Exporter,
		metrics:  p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	ctx = actorctx.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	log := s.log.With(zap.String("job", name))
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out", zap.Duration("timeout", jobTimeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunJob runs a single job by name with the same actor, timeout and metrics
// treatment a scheduled run gets. It is the entry point for the internal
// job endpoints.
func (s *Scheduler) RunJob(parent context.Context, name string) error {
	switch name {
	case JobCancelStaleOrders:
		return s.runJob(parent, name, s.CancelStaleOrdersJob)
	case JobAuditExport:
		return s.runJob(parent, name, s.AuditExportJob)
	default:
		return fmt.Errorf("unknown job %q", name)
	}
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobCancelStaleOrders, s.CancelStaleOrdersJob},
		{JobAuditExport, s.AuditExportJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		run := job.Run
		err = errors.Join(err, s.runJob(parent, job.Name, run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	interval := s.quotas.Get().Scheduler.Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(name string) bool {
	for _, disabled := range s.quotas.Get().Scheduler.DisabledJobs {
		if strings.EqualFold(disabled, name) {
			return false
		}
	}
	return true
}

func (s *Scheduler) CancelStaleOrdersJob(ctx context.Context) error {
	maxAge := s.quotas.Get().Scheduler.StaleOrderMaxAge
	cancelled, err := s.orderSvc.CancelStale(ctx, maxAge)
	if err != nil {
		return err
	}
	if cancelled > 0 {
		s.log.Info("stale order sweep finished",
			zap.Int("cancelled", cancelled),
			zap.Duration("max_age", maxAge),
		)
	}
	return nil
}

// AuditExportJob archives yesterday's audit entries (or further back when
// configured). The exporter skips days that already have an archive.
func (s *Scheduler) AuditExportJob(ctx context.Context) error {
	lookback := s.quotas.Get().Scheduler.ExportLookbackDay
	if lookback < 1 {
		lookback = 1
	}

	var err error
	for offset := lookback; offset >= 1; offset-- {
		day := s.clock.Now().UTC().AddDate(0, 0, -offset)
		err = errors.Join(err, s.exporter.ExportDay(ctx, day))
	}
	return err
}
