package catalog

import (
	"go.uber.org/fx"

	"github.com/mealgrid/mealgrid/internal/catalog/repository"
	"github.com/mealgrid/mealgrid/internal/catalog/service"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
