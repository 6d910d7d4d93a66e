package invoice

import (
	"github.com/smallbiznis/metering/internal/invoice/repository"
	"github.com/smallbiznis/metering/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(
		repository.New,
		service.New,
	),
)
