package webhook

import (
	"net/http"

	"github.com/smallbiznis/metering/internal/config"
	invoicedomain "github.com/smallbiznis/metering/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("webhook.notifier",
	fx.Provide(
		func(cfg config.Config, log *zap.Logger) *Notifier {
			return New(cfg.NotifierBaseURL, log,
				WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
			)
		},
		fx.Annotate(
			func(n *Notifier) invoicedomain.CreatedHandler { return n },
			fx.ResultTags(`group:"invoice.created"`),
		),
	),
)
