package audit

import (
	"go.uber.org/fx"

	"github.com/mealgrid/mealgrid/internal/audit/export"
	"github.com/mealgrid/mealgrid/internal/audit/repository"
	"github.com/mealgrid/mealgrid/internal/audit/service"
	"github.com/mealgrid/mealgrid/internal/config"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(newExportStore),
	fx.Provide(export.NewExporter),
)

func newExportStore(cfg config.Config) export.Store {
	return export.NewFileStore(cfg.AuditExportDir)
}
