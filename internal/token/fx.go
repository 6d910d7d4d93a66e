package token

import (
	"github.com/smallbiznis/metering/internal/clock"
	"github.com/smallbiznis/metering/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("token",
	fx.Provide(func(cfg config.Config, clk clock.Clock) (*Issuer, error) {
		return NewIssuer(Config{
			Secret: cfg.JWTSecret,
			Issuer: cfg.JWTIssuer,
			TTL:    cfg.JWTTTL,
		}, clk)
	}),
)
