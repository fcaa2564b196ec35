package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/amaumene/grabarr/internal/metrics"
	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/quality"
	"github.com/amaumene/grabarr/internal/services/downloadclient"
	"github.com/amaumene/grabarr/internal/telemetry"
)

// ErrNoClient is returned when no enabled client handles a release protocol
var ErrNoClient = errors.New("no download client available")

// Importer moves the files of a completed download into the library
type Importer interface {
	ImportDownload(ctx context.Context, d *models.Download) (*ImportResult, error)
}

// DownloadController manages download operations
type DownloadController struct {
	db        *models.Database
	clients   []downloadclient.Client
	blacklist *BlacklistController
	history   *HistoryController
	importer  Importer
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    *logrus.Logger
}

// NewDownloadController creates a new download controller. Clients are
// expected in priority order.
func NewDownloadController(db *models.Database, clients []downloadclient.Client, blacklist *BlacklistController, history *HistoryController, importer Importer, m *metrics.Metrics, logger *logrus.Logger) *DownloadController {
	return &DownloadController{
		db:        db,
		clients:   clients,
		blacklist: blacklist,
		history:   history,
		importer:  importer,
		metrics:   m,
		now:       time.Now,
		logger:    logger,
	}
}

func (c *DownloadController) clientFor(protocol string) downloadclient.Client {
	for _, client := range c.clients {
		if protocol == "" || client.Protocol() == protocol {
			return client
		}
	}
	return nil
}

func (c *DownloadController) clientByName(name string) downloadclient.Client {
	for _, client := range c.clients {
		if client.Name() == name {
			return client
		}
	}
	return nil
}

// Grab submits a release to the highest priority client for its protocol.
// When the client rejects it, the failed download is returned with the error.
func (c *DownloadController) Grab(ctx context.Context, scored quality.ScoredRelease, target Target) (*models.Download, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "grab")
	defer span.End()

	cand := scored.Candidate
	span.SetAttributes(
		attribute.String("title", cand.Title),
		attribute.String("indexer", cand.Indexer),
	)

	client := c.clientFor(cand.Protocol)
	if client == nil {
		span.SetStatus(codes.Error, ErrNoClient.Error())
		return nil, fmt.Errorf("%w for protocol %q", ErrNoClient, cand.Protocol)
	}

	download := &models.Download{
		Title:     cand.Title,
		GUID:      cand.GUID,
		Indexer:   cand.Indexer,
		URL:       cand.DownloadURL,
		Size:      cand.Size,
		Quality:   scored.QualityName,
		MediaType: target.MediaType,
		EntityID:  target.EntityID,
		IsUpgrade: target.HasFile,
		Client:    client.Name(),
		Status:    models.DownloadStatusQueued,
	}

	c.logger.WithFields(logrus.Fields{
		"title":   cand.Title,
		"quality": scored.QualityName,
		"client":  client.Name(),
		"target":  target.String(),
	}).Info("Starting download")

	jobID, err := client.Add(ctx, downloadclient.AddRequest{Title: cand.Title, URL: cand.DownloadURL})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.metrics.GrabFailures.WithLabelValues(client.Name()).Inc()

		reason := fmt.Sprintf("failed to submit to %s: %v", client.Name(), err)
		download.Status = models.DownloadStatusFailed
		download.Error = reason
		if dbErr := c.db.CreateDownload(download); dbErr != nil {
			c.logger.WithError(dbErr).Error("Failed to save failed download")
			return nil, fmt.Errorf("failed to grab %s: %w", cand.Title, err)
		}
		c.history.record(ctx, models.EventDownloadFailed, download, reason)
		if blErr := c.blacklist.RecordFailure(download, models.FailureTypeGrab, reason); blErr != nil {
			c.logger.WithError(blErr).Error("Failed to record grab failure")
		}
		return download, fmt.Errorf("failed to grab %s: %w", cand.Title, err)
	}

	download.ClientJobID = jobID
	if err := c.db.CreateDownload(download); err != nil {
		return nil, fmt.Errorf("failed to save download: %w", err)
	}
	c.metrics.Grabs.WithLabelValues(client.Name(), string(target.MediaType)).Inc()

	event := models.EventGrab
	message := "release grabbed"
	if target.HasFile {
		event = models.EventUpgrade
		message = fmt.Sprintf("upgrade from %s grabbed", target.CurrentQuality)
	}
	c.history.record(ctx, event, download, message)

	c.logger.WithFields(logrus.Fields{
		"download_id": download.ID,
		"job_id":      jobID,
	}).Info("Download job created")
	return download, nil
}

// RefreshQueue polls every client and applies the reported states
func (c *DownloadController) RefreshQueue(ctx context.Context) error {
	ctx, span := telemetry.Tracer().Start(ctx, "refresh-queue")
	defer span.End()

	downloads, err := c.db.GetDownloadsByStatus(
		models.DownloadStatusQueued,
		models.DownloadStatusDownloading,
		models.DownloadStatusPaused,
		models.DownloadStatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("failed to get downloads: %w", err)
	}
	span.SetAttributes(attribute.Int("downloads", len(downloads)))

	items := make([][]downloadclient.Item, len(c.clients))
	errs := make([]error, len(c.clients))
	var g errgroup.Group
	for i, client := range c.clients {
		i, client := i, client
		g.Go(func() error {
			items[i], errs[i] = client.Items(ctx)
			return nil
		})
	}
	_ = g.Wait()

	byClient := make(map[string]map[string]downloadclient.Item, len(c.clients))
	for i, client := range c.clients {
		if errs[i] != nil {
			c.logger.WithError(errs[i]).WithField("client", client.Name()).Warn("Failed to poll download client")
			continue
		}
		jobs := make(map[string]downloadclient.Item, len(items[i]))
		for _, item := range items[i] {
			jobs[item.ID] = item
		}
		byClient[client.Name()] = jobs
	}

	for _, d := range downloads {
		if d.Status == models.DownloadStatusCompleted {
			if !d.Imported {
				if err := c.MarkCompletedForImport(ctx, d); err != nil {
					c.logger.WithError(err).WithField("download_id", d.ID).Error("Import failed")
				}
			}
			continue
		}

		jobs, ok := byClient[d.Client]
		if !ok {
			continue
		}
		item, ok := jobs[d.ClientJobID]
		if !ok {
			c.logger.WithFields(logrus.Fields{
				"download_id": d.ID,
				"client":      d.Client,
				"job_id":      d.ClientJobID,
			}).Debug("Download not reported by client")
			continue
		}
		if err := c.apply(ctx, d, item); err != nil {
			c.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to update download")
		}
	}

	c.updateStateGauge()
	return nil
}

// apply moves a download to the state its client reports
func (c *DownloadController) apply(ctx context.Context, d *models.Download, item downloadclient.Item) error {
	now := c.now().UTC()
	changed := false
	if item.Progress != d.Progress {
		d.Progress = item.Progress
		d.ProgressAt = now
		changed = true
	}

	if item.Status != d.Status {
		if !d.CanTransition(item.Status) {
			c.logger.WithFields(logrus.Fields{
				"download_id": d.ID,
				"from":        d.Status,
				"to":          item.Status,
				"raw_status":  item.RawStatus,
			}).Debug("Ignoring status change")
		} else {
			switch item.Status {
			case models.DownloadStatusFailed:
				reason := item.Error
				if reason == "" {
					reason = fmt.Sprintf("download failed in %s (%s)", d.Client, item.RawStatus)
				}
				return c.fail(ctx, d, models.FailureTypeDownload, reason)

			case models.DownloadStatusCompleted:
				if err := d.Transition(models.DownloadStatusCompleted); err != nil {
					return err
				}
				d.Progress = 100
				d.OutputPath = item.OutputPath
				d.CompletedAt = &now
				if err := c.db.UpdateDownload(d); err != nil {
					return fmt.Errorf("failed to update download: %w", err)
				}
				c.logger.WithFields(logrus.Fields{
					"download_id": d.ID,
					"title":       d.Title,
					"path":        d.OutputPath,
				}).Info("Download completed")
				c.history.record(ctx, models.EventDownloadCompleted, d, "download completed")
				return c.MarkCompletedForImport(ctx, d)

			default:
				if err := d.Transition(item.Status); err != nil {
					return err
				}
				changed = true
			}
		}
	}

	if !changed {
		return nil
	}
	if err := c.db.UpdateDownload(d); err != nil {
		return fmt.Errorf("failed to update download: %w", err)
	}
	return nil
}

// fail marks a download failed, records it and counts it against the release
func (c *DownloadController) fail(ctx context.Context, d *models.Download, failureType models.FailureType, reason string) error {
	if err := d.Fail(reason); err != nil {
		return err
	}
	if err := c.db.UpdateDownload(d); err != nil {
		return fmt.Errorf("failed to update download: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"download_id": d.ID,
		"title":       d.Title,
		"reason":      reason,
	}).Warn("Download failed")
	c.history.record(ctx, models.EventDownloadFailed, d, reason)

	if err := c.blacklist.RecordFailure(d, failureType, reason); err != nil {
		c.logger.WithError(err).Error("Failed to record download failure")
	}
	return nil
}

// MarkCompletedForImport moves a completed download to importing and hands it to the importer
func (c *DownloadController) MarkCompletedForImport(ctx context.Context, d *models.Download) error {
	if err := d.Transition(models.DownloadStatusImporting); err != nil {
		return err
	}
	if err := c.db.UpdateDownload(d); err != nil {
		return fmt.Errorf("failed to update download: %w", err)
	}

	if _, err := c.importer.ImportDownload(ctx, d); err != nil {
		return fmt.Errorf("failed to import %s: %w", d.Title, err)
	}
	return nil
}

// Cancel removes a download from its client and deletes its record
func (c *DownloadController) Cancel(ctx context.Context, downloadID uint, deleteFiles bool) error {
	d, err := c.db.GetDownloadByID(downloadID)
	if err != nil {
		return fmt.Errorf("failed to get download: %w", err)
	}

	if !d.IsTerminal() && d.ClientJobID != "" {
		if client := c.clientByName(d.Client); client != nil {
			err := client.Remove(ctx, d.ClientJobID, deleteFiles)
			if err != nil && !errors.Is(err, downloadclient.ErrJobNotFound) {
				return fmt.Errorf("failed to remove job from %s: %w", d.Client, err)
			}
		}
	}

	if err := c.db.DeleteDownload(d.ID); err != nil {
		return fmt.Errorf("failed to delete download: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"download_id":  d.ID,
		"title":        d.Title,
		"delete_files": deleteFiles,
	}).Info("Download cancelled")
	c.history.record(ctx, models.EventDelete, d, "download cancelled")
	return nil
}

// CancelForEntity cancels every unfinished download of a library entity
func (c *DownloadController) CancelForEntity(ctx context.Context, mt models.MediaType, entityID uint, deleteFiles bool) error {
	downloads, err := c.db.GetPendingDownloadsForEntity(mt, entityID)
	if err != nil {
		return fmt.Errorf("failed to get pending downloads: %w", err)
	}
	for _, d := range downloads {
		if err := c.Cancel(ctx, d.ID, deleteFiles); err != nil {
			return err
		}
	}
	return nil
}

// CheckStuckDownloads fails queued or downloading jobs whose progress has
// not changed within timeout and removes them from their client. Imports left
// unfinished for as long are queued again.
func (c *DownloadController) CheckStuckDownloads(ctx context.Context, timeout time.Duration) (int, error) {
	downloads, err := c.db.GetDownloadsByStatus(models.DownloadStatusQueued, models.DownloadStatusDownloading)
	if err != nil {
		return 0, fmt.Errorf("failed to get downloads: %w", err)
	}

	cutoff := c.now().UTC().Add(-timeout)
	stuck := 0
	for _, d := range downloads {
		if d.ProgressAt.After(cutoff) {
			continue
		}

		if client := c.clientByName(d.Client); client != nil && d.ClientJobID != "" {
			if err := client.Remove(ctx, d.ClientJobID, true); err != nil && !errors.Is(err, downloadclient.ErrJobNotFound) {
				c.logger.WithError(err).WithField("download_id", d.ID).Warn("Failed to remove stuck job")
			}
		}

		reason := fmt.Sprintf("no progress for %s", timeout)
		if err := c.fail(ctx, d, models.FailureTypeDownload, reason); err != nil {
			c.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to fail stuck download")
			continue
		}
		stuck++
	}

	if stuck > 0 {
		c.logger.WithField("count", stuck).Warn("Stuck downloads failed")
	}

	if err := c.requeueStaleImports(cutoff); err != nil {
		return stuck, err
	}
	return stuck, nil
}

// requeueStaleImports hands imports interrupted before the cutoff back to the
// completed state so the next queue refresh retries them
func (c *DownloadController) requeueStaleImports(cutoff time.Time) error {
	importing, err := c.db.GetDownloadsByStatus(models.DownloadStatusImporting)
	if err != nil {
		return fmt.Errorf("failed to get importing downloads: %w", err)
	}

	for _, d := range importing {
		if d.UpdatedAt.After(cutoff) {
			continue
		}
		if err := d.Transition(models.DownloadStatusCompleted); err != nil {
			return err
		}
		d.Imported = false
		if err := c.db.UpdateDownload(d); err != nil {
			c.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to re-queue stale import")
			continue
		}
		c.logger.WithFields(logrus.Fields{
			"download_id": d.ID,
			"title":       d.Title,
		}).Warn("Re-queued stale import")
	}
	return nil
}

// Queue returns the downloads that have not reached a final state
func (c *DownloadController) Queue() ([]*models.Download, error) {
	downloads, err := c.db.GetDownloadsByStatus(
		models.DownloadStatusQueued,
		models.DownloadStatusDownloading,
		models.DownloadStatusPaused,
		models.DownloadStatusCompleted,
		models.DownloadStatusImporting,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}
	queue := downloads[:0]
	for _, d := range downloads {
		if !d.IsTerminal() {
			queue = append(queue, d)
		}
	}
	return queue, nil
}

func (c *DownloadController) updateStateGauge() {
	counts, err := c.db.CountDownloadsByStatus()
	if err != nil {
		c.logger.WithError(err).Warn("Failed to count downloads")
		return
	}
	for _, status := range []models.DownloadStatus{
		models.DownloadStatusQueued,
		models.DownloadStatusDownloading,
		models.DownloadStatusPaused,
		models.DownloadStatusCompleted,
		models.DownloadStatusImporting,
		models.DownloadStatusFailed,
	} {
		c.metrics.DownloadStates.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
