package observability

import (
	"github.com/smallbiznis/metering/internal/config"
	"github.com/smallbiznis/metering/internal/observability/logger"
	"github.com/smallbiznis/metering/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideLoggerConfig,
		logger.New,
	),
	fx.Invoke(ensureMonitorMetrics),
)

func provideLoggerConfig(cfg config.Config) logger.Config {
	return logger.Config{
		ServiceName:   cfg.AppName,
		Environment:   cfg.Environment,
		Version:       cfg.AppVersion,
		Level:         cfg.LogLevel,
		Format:        cfg.LogFormat,
		IncludeCaller: true,
	}
}

func ensureMonitorMetrics(cfg config.Config) {
	metrics.MonitorWithConfig(metrics.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
	})
}
