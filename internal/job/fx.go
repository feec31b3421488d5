package job

import (
	"github.com/caresignal/adherence/internal/job/repository"
	"github.com/caresignal/adherence/internal/job/service"
	"go.uber.org/fx"
)

var Module = fx.Module("job.service",
	fx.Provide(repository.New),
	fx.Provide(service.NewService),
)
