package event

import (
	"github.com/caresignal/adherence/internal/cache"
	"github.com/caresignal/adherence/internal/event/repository"
	"github.com/caresignal/adherence/internal/event/service"
	"go.uber.org/fx"
)

var Module = fx.Module("event.service",
	cache.Module,
	fx.Provide(repository.New),
	fx.Provide(service.NewService),
)
