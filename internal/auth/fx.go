package auth

import (
	"go.uber.org/fx"

	"github.com/mealgrid/mealgrid/internal/auth/repository"
	"github.com/mealgrid/mealgrid/internal/auth/service"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
