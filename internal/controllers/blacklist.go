package controllers

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/models"
)

// BlacklistController tracks releases excluded from searches after failures
type BlacklistController struct {
	db          *models.Database
	ttl         time.Duration
	maxFailures int
	now         func() time.Time
	logger      *logrus.Logger
}

// NewBlacklistController creates a new blacklist controller
func NewBlacklistController(db *models.Database, cfg config.BlacklistConfig, logger *logrus.Logger) *BlacklistController {
	return &BlacklistController{
		db:          db,
		ttl:         cfg.TTL,
		maxFailures: cfg.MaxFailures,
		now:         time.Now,
		logger:      logger,
	}
}

// Add blacklists a release until the configured expiry
func (c *BlacklistController) Add(guid, indexer, title string, failureType models.FailureType, reason string) error {
	now := c.now().UTC()
	entry := &models.BlacklistedRelease{
		GUID:          guid,
		Indexer:       indexer,
		Title:         title,
		Reason:        reason,
		FailureType:   failureType,
		BlacklistedAt: now,
		ExpiresAt:     now.Add(c.ttl),
	}
	if err := c.db.UpsertBlacklist(entry); err != nil {
		return fmt.Errorf("failed to blacklist release: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"title":        title,
		"indexer":      indexer,
		"failure_type": failureType,
		"expires_at":   entry.ExpiresAt,
	}).Warn("Release blacklisted")
	return nil
}

// RecordFailure blacklists the release of a failed download. Import failures
// blacklist immediately; grab and download failures once the release has
// failed maxFailures times.
func (c *BlacklistController) RecordFailure(d *models.Download, failureType models.FailureType, reason string) error {
	if d.GUID == "" {
		return nil
	}

	if failureType != models.FailureTypeImport {
		failed, err := c.db.CountFailedDownloads(d.GUID, d.Indexer)
		if err != nil {
			return fmt.Errorf("failed to count failures: %w", err)
		}
		if failed < int64(c.maxFailures) {
			c.logger.WithFields(logrus.Fields{
				"title":    d.Title,
				"failures": failed,
				"max":      c.maxFailures,
			}).Info("Release failed, not blacklisted yet")
			return nil
		}
	}
	return c.Add(d.GUID, d.Indexer, d.Title, failureType, reason)
}

// Active returns the entries in force, keyed like models.Candidate.Key
func (c *BlacklistController) Active() (map[string]*models.BlacklistedRelease, error) {
	entries, err := c.db.GetActiveBlacklist(c.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get blacklist: %w", err)
	}
	active := make(map[string]*models.BlacklistedRelease, len(entries))
	for _, e := range entries {
		active[models.Candidate{GUID: e.GUID, Indexer: e.Indexer}.Key()] = e
	}
	return active, nil
}

// IsBlacklisted reports whether a release is currently excluded
func (c *BlacklistController) IsBlacklisted(guid, indexer string) (bool, error) {
	entry, err := c.db.GetBlacklistEntry(guid, indexer)
	if err == models.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get blacklist entry: %w", err)
	}
	return entry.ActiveAt(c.now().UTC()), nil
}

// Prune removes expired entries
func (c *BlacklistController) Prune() (int64, error) {
	removed, err := c.db.DeleteExpiredBlacklist(c.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune blacklist: %w", err)
	}
	if removed > 0 {
		c.logger.WithField("removed", removed).Info("Pruned expired blacklist entries")
	}
	return removed, nil
}
