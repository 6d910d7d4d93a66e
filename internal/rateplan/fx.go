package rateplan

import (
	"net/http"

	"github.com/smallbiznis/metering/internal/config"
	"github.com/smallbiznis/metering/internal/rateplan/client"
	"github.com/smallbiznis/metering/internal/rateplan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rateplan.client",
	fx.Provide(func(cfg config.Config, log *zap.Logger) domain.Fetcher {
		return client.New(cfg.RatePlanBaseURL, log,
			client.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
			client.WithMaxResponseBytes(cfg.MaxResponseBytes),
		)
	}),
)
