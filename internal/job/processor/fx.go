package processor

import (
	"context"

	"github.com/caresignal/adherence/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("job.processor",
	fx.Provide(configFromApp),
	fx.Provide(NewWorker),
	fx.Invoke(runWorker),
)

func configFromApp(appCfg config.Config) Config {
	return Config{
		PollInterval: appCfg.JobPollInterval,
		BatchSize:    appCfg.JobBatchSize,
	}.withDefaults()
}

func runWorker(lc fx.Lifecycle, worker *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go worker.RunForever(ctx)

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
