package migration

import (
	"github.com/caresignal/adherence/internal/config"
	eventdomain "github.com/caresignal/adherence/internal/event/domain"
	jobdomain "github.com/caresignal/adherence/internal/job/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Non-postgres dialects (sqlite, mysql) fall back to AutoMigrate.
		return conn.AutoMigrate(
			&eventdomain.UsageEvent{},
			&jobdomain.BatchJob{},
		)
	}),
)
