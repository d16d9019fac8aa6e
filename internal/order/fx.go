package order

import (
	"go.uber.org/fx"

	"github.com/mealgrid/mealgrid/internal/order/ordernumber"
	"github.com/mealgrid/mealgrid/internal/order/repository"
	"github.com/mealgrid/mealgrid/internal/order/service"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(ordernumber.NewGenerator),
	fx.Provide(service.New),
)
