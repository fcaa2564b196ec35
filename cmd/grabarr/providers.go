package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/api"
	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/controllers"
	"github.com/amaumene/grabarr/internal/events"
	"github.com/amaumene/grabarr/internal/metrics"
	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/scheduler"
	"github.com/amaumene/grabarr/internal/services"
	"github.com/amaumene/grabarr/internal/utils"
)

// App holds the components driven by the commands
type App struct {
	Scheduler *scheduler.Scheduler
	Server    *api.Server
	Cleanup   *controllers.CleanupController
	Importer  *controllers.ImportController
}

func provideDatabase(cfg *config.Config, logger *logrus.Logger) (*models.Database, func(), error) {
	db, err := models.NewDatabase(cfg.DatabaseFile, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.WithField("path", cfg.DatabaseFile).Info("Database initialized")

	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Error("Failed to close database")
		}
	}
	return db, cleanup, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func providePublisher(cfg *config.Config, logger *logrus.Logger) (events.Publisher, func(), error) {
	publisher, err := events.NewPublisher(cfg.Events, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}

	cleanup := func() {
		if err := publisher.Close(); err != nil {
			logger.WithError(err).Error("Failed to close event publisher")
		}
	}
	return publisher, cleanup, nil
}

func provideIgnoredTerms(cfg *config.Config, logger *logrus.Logger) *utils.IgnoredTerms {
	terms, err := utils.LoadIgnoredTerms(cfg.IgnoredTermsFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load ignored terms, continuing without them")
		return utils.NewIgnoredTerms()
	}
	logger.WithField("count", terms.Len()).Info("Ignored terms loaded")
	return terms
}

func provideIndexers(cfg *config.Config, logger *logrus.Logger) ([]controllers.Indexer, error) {
	clients, err := services.NewIndexers(cfg, logger)
	if err != nil {
		return nil, err
	}
	indexers := make([]controllers.Indexer, 0, len(clients))
	for _, c := range clients {
		indexers = append(indexers, c)
	}
	return indexers, nil
}

func provideBlacklistConfig(cfg *config.Config) config.BlacklistConfig {
	return cfg.Blacklist
}

func provideServer(cfg *config.Config, db *models.Database, downloads *controllers.DownloadController, sched *scheduler.Scheduler, reg *prometheus.Registry, logger *logrus.Logger) *api.Server {
	return api.NewServer(cfg, db, downloads, sched, reg, logger)
}
