package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metering/internal/clock"
	"github.com/smallbiznis/metering/internal/config"
	"github.com/smallbiznis/metering/internal/invoice"
	"github.com/smallbiznis/metering/internal/meter"
	"github.com/smallbiznis/metering/internal/monitor"
	"github.com/smallbiznis/metering/internal/observability"
	"github.com/smallbiznis/metering/internal/rateplan"
	"github.com/smallbiznis/metering/internal/subscription"
	"github.com/smallbiznis/metering/internal/token"
	"github.com/smallbiznis/metering/internal/usage"
	"github.com/smallbiznis/metering/internal/webhook"
	"github.com/smallbiznis/metering/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		token.Module,

		// Functional domains
		usage.Module,
		rateplan.Module,
		subscription.Module,
		meter.Module,
		invoice.Module,
		webhook.Module,
		monitor.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
