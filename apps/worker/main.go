package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/caresignal/adherence/internal/clock"
	"github.com/caresignal/adherence/internal/config"
	"github.com/caresignal/adherence/internal/event"
	"github.com/caresignal/adherence/internal/job"
	"github.com/caresignal/adherence/internal/job/processor"
	"github.com/caresignal/adherence/internal/logger"
	"github.com/caresignal/adherence/internal/metrics"
	"github.com/caresignal/adherence/internal/migration"
	"github.com/caresignal/adherence/pkg/db"
	"go.uber.org/fx"
)

// worker runs the job processor without the HTTP API.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		event.Module,
		job.Module,
		processor.Module,
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
