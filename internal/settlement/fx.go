package settlement

import (
	"go.uber.org/fx"

	"github.com/mealgrid/mealgrid/internal/settlement/repository"
	"github.com/mealgrid/mealgrid/internal/settlement/service"
)

var Module = fx.Module("settlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
