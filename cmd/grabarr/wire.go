//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/controllers"
	"github.com/amaumene/grabarr/internal/scheduler"
	"github.com/amaumene/grabarr/internal/services"
)

func InitializeApp(cfg *config.Config, logger *logrus.Logger) (*App, func(), error) {
	wire.Build(
		// Infrastructure
		provideDatabase,
		provideRegistry,
		provideMetrics,
		providePublisher,
		provideIgnoredTerms,

		// External services
		provideIndexers,
		services.NewDownloadClients,

		// Controllers
		provideBlacklistConfig,
		controllers.NewBlacklistController,
		controllers.NewHistoryController,
		controllers.NewImportController,
		wire.Bind(new(controllers.Importer), new(*controllers.ImportController)),
		controllers.NewDownloadController,
		controllers.NewSearchController,
		controllers.NewStrategyController,
		controllers.NewWantedController,
		controllers.NewCleanupController,

		// Scheduling and HTTP
		scheduler.NewScheduler,
		provideServer,
		wire.Struct(new(App), "*"),
	)

	return nil, nil, nil
}
