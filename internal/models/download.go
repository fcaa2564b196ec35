package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a download cannot move to the requested status
var ErrInvalidTransition = errors.New("invalid download status transition")

// Download tracks a release submitted to a download client
type Download struct {
	ID uint `gorm:"primaryKey"`

	// Release details
	Title   string
	GUID    string `gorm:"index:idx_download_release"`
	Indexer string `gorm:"index:idx_download_release"`
	URL     string
	Size    int64
	Quality string

	// Target library entity
	MediaType MediaType `gorm:"index"`
	EntityID  uint      `gorm:"index"`
	IsUpgrade bool

	// Download client tracking
	Client      string `gorm:"index:idx_download_client"`
	ClientJobID string `gorm:"index:idx_download_client"`
	Status      DownloadStatus `gorm:"index"`
	Progress    float64
	OutputPath  string
	Imported    bool
	Error       string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProgressAt  time.Time // last time progress changed, used for stuck detection
	CompletedAt *time.Time
}

var downloadTransitions = map[DownloadStatus][]DownloadStatus{
	DownloadStatusQueued:      {DownloadStatusDownloading, DownloadStatusPaused, DownloadStatusCompleted, DownloadStatusFailed},
	DownloadStatusDownloading: {DownloadStatusPaused, DownloadStatusCompleted, DownloadStatusFailed},
	DownloadStatusPaused:      {DownloadStatusDownloading, DownloadStatusQueued, DownloadStatusFailed},
	DownloadStatusCompleted:   {DownloadStatusImporting},
	DownloadStatusImporting:   {DownloadStatusCompleted, DownloadStatusFailed},
}

// IsTerminal reports whether the download has reached a final state
func (d *Download) IsTerminal() bool {
	return d.Status == DownloadStatusFailed || (d.Status == DownloadStatusCompleted && d.Imported)
}

// IsActive reports whether the download is still tracked by a client
func (d *Download) IsActive() bool {
	switch d.Status {
	case DownloadStatusQueued, DownloadStatusDownloading, DownloadStatusPaused:
		return true
	}
	return false
}

// CanTransition reports whether moving to status is allowed from the current status
func (d *Download) CanTransition(status DownloadStatus) bool {
	if d.IsTerminal() {
		return false
	}
	for _, next := range downloadTransitions[d.Status] {
		if next == status {
			return true
		}
	}
	return false
}

// Transition moves the download to status, rejecting moves the state machine does not allow
func (d *Download) Transition(status DownloadStatus) error {
	if d.Status == status {
		return nil
	}
	if !d.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, status)
	}
	d.Status = status
	return nil
}

// Fail moves the download to failed and records the reason
func (d *Download) Fail(reason string) error {
	if err := d.Transition(DownloadStatusFailed); err != nil {
		return err
	}
	d.Error = reason
	return nil
}
