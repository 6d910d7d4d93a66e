package monitor

import (
	"context"

	"github.com/smallbiznis/metering/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("monitor",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(StartMonitor),
)

func ProvideConfig(cfg config.Config) Config {
	return Config{Interval: cfg.MonitorInterval}.withDefaults()
}

func StartMonitor(lc fx.Lifecycle, m *Monitor) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go m.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
			return nil
		},
	})
}
