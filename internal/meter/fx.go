package meter

import (
	"github.com/smallbiznis/metering/internal/meter/service"
	"go.uber.org/fx"
)

var Module = fx.Module("meter.service",
	fx.Provide(service.New),
)
