// Package services builds the external service adapters from configuration.
package services

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/services/downloadclient"
	"github.com/amaumene/grabarr/internal/services/newznab"
	"github.com/amaumene/grabarr/internal/services/nzbget"
	"github.com/amaumene/grabarr/internal/services/sabnzbd"
	"github.com/amaumene/grabarr/internal/services/torbox"
)

// NewDownloadClient creates the adapter of a configured client
func NewDownloadClient(cfg config.ClientConfig, maxRetries uint64, logger *logrus.Logger) (downloadclient.Client, error) {
	switch cfg.Implementation {
	case config.ClientSABnzbd:
		return sabnzbd.NewClient(cfg, maxRetries, logger)
	case config.ClientNZBGet:
		return nzbget.NewClient(cfg, maxRetries, logger)
	case config.ClientTorBox:
		return torbox.NewClient(cfg, maxRetries, logger)
	default:
		return nil, fmt.Errorf("unsupported download client implementation %q", cfg.Implementation)
	}
}

// NewDownloadClients creates every enabled client, ordered by priority
// (lowest value first); ties keep configuration order
func NewDownloadClients(cfg *config.Config, logger *logrus.Logger) ([]downloadclient.Client, error) {
	enabled := make([]config.ClientConfig, 0, len(cfg.Clients))
	for _, c := range cfg.Clients {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority < enabled[j].Priority
	})

	clients := make([]downloadclient.Client, 0, len(enabled))
	for _, c := range enabled {
		client, err := NewDownloadClient(c, cfg.Search.MaxRetries, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create download client %s: %w", c.Name, err)
		}
		clients = append(clients, client)
		logger.WithFields(logrus.Fields{
			"client":         c.Name,
			"implementation": c.Implementation,
			"priority":       c.Priority,
		}).Info("Download client configured")
	}
	return clients, nil
}

// NewIndexers creates a newznab client for every enabled indexer
func NewIndexers(cfg *config.Config, logger *logrus.Logger) ([]*newznab.Client, error) {
	indexers := make([]*newznab.Client, 0, len(cfg.Indexers))
	for _, idx := range cfg.Indexers {
		if !idx.Enabled {
			continue
		}
		client, err := newznab.NewClient(idx, cfg.Search.MaxRetries, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create indexer %s: %w", idx.Name, err)
		}
		indexers = append(indexers, client)
		logger.WithField("indexer", idx.Name).Info("Indexer configured")
	}
	return indexers, nil
}
