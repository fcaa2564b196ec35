package controllers

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// WantedController searches for and grabs missing or upgradable library items
type WantedController struct {
	strategy  *StrategyController
	search    *SearchController
	downloads *DownloadController
	logger    *logrus.Logger
}

// NewWantedController creates a new wanted controller
func NewWantedController(strategy *StrategyController, search *SearchController, downloads *DownloadController, logger *logrus.Logger) *WantedController {
	return &WantedController{
		strategy:  strategy,
		search:    search,
		downloads: downloads,
		logger:    logger,
	}
}

// SearchWanted searches every wanted target and grabs the best release.
// A failing target is logged and skipped. Returns the number of grabs.
func (c *WantedController) SearchWanted(ctx context.Context) (int, error) {
	targets, err := c.strategy.WantedTargets()
	if err != nil {
		return 0, fmt.Errorf("failed to determine wanted items: %w", err)
	}

	c.logger.WithField("count", len(targets)).Info("Starting wanted search")

	grabbed := 0
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return grabbed, err
		}
		ok, err := c.searchTarget(ctx, target)
		if err != nil {
			c.logger.WithError(err).WithField("target", target.String()).Warn("Wanted search failed")
			continue
		}
		if ok {
			grabbed++
		}
	}

	c.logger.WithFields(logrus.Fields{
		"searched": len(targets),
		"grabbed":  grabbed,
	}).Info("Wanted search completed")
	return grabbed, nil
}

// searchTarget grabs the best release of a target. A rejected grab is not
// retried; the target stays wanted for the next run.
func (c *WantedController) searchTarget(ctx context.Context, target Target) (bool, error) {
	releases, err := c.search.SearchTarget(ctx, target)
	if err != nil {
		return false, err
	}
	if len(releases) == 0 {
		c.logger.WithField("target", target.String()).Debug("No acceptable release found")
		return false, nil
	}

	if _, err := c.downloads.Grab(ctx, releases[0], target); err != nil {
		return false, err
	}
	return true, nil
}
