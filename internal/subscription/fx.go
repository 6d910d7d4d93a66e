package subscription

import (
	"net/http"

	"github.com/smallbiznis/metering/internal/config"
	"github.com/smallbiznis/metering/internal/subscription/client"
	"github.com/smallbiznis/metering/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("subscription.client",
	fx.Provide(func(cfg config.Config, log *zap.Logger) domain.Fetcher {
		return client.New(cfg.SubscriptionBaseURL, log,
			client.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
			client.WithMaxResponseBytes(cfg.MaxResponseBytes),
		)
	}),
)
