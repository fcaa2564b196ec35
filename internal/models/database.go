package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Database wraps the GORM connection
type Database struct {
	db *gorm.DB
}

// NewDatabase opens the SQLite database at path and migrates the schema
func NewDatabase(path string, logger *logrus.Logger) (*Database, error) {
	return open(path+"?_busy_timeout=5000&_foreign_keys=on", logger)
}

func open(dsn string, logger *logrus.Logger) (*Database, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newGormLogger(logger),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := &Database{db: gdb}
	if err := db.Migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates all tables
func (db *Database) Migrate() error {
	err := db.db.AutoMigrate(
		&Download{},
		&BlacklistedRelease{},
		&History{},
		&Series{},
		&Season{},
		&Episode{},
		&Movie{},
		&Artist{},
		&Album{},
		&Track{},
		&Author{},
		&Book{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *Database) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn inside a single transaction; fn must only use the Database it receives
func (db *Database) Transaction(fn func(tx *Database) error) error {
	return db.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Database{db: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Download operations

// CreateDownload inserts a new download record
func (db *Database) CreateDownload(download *Download) error {
	if download.ProgressAt.IsZero() {
		download.ProgressAt = time.Now().UTC()
	}
	return db.db.Create(download).Error
}

// UpdateDownload saves every field of an existing download
func (db *Database) UpdateDownload(download *Download) error {
	return db.db.Save(download).Error
}

// GetDownloadByID retrieves a download by ID
func (db *Database) GetDownloadByID(id uint) (*Download, error) {
	var download Download
	if err := db.db.First(&download, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &download, nil
}

// GetDownloadByClientJob retrieves a download by its client name and job id
func (db *Database) GetDownloadByClientJob(client, jobID string) (*Download, error) {
	var download Download
	err := db.db.Where("client = ? AND client_job_id = ?", client, jobID).
		Order("id DESC").
		First(&download).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &download, nil
}

// GetDownloadByTitle retrieves the newest download with the given release title
func (db *Database) GetDownloadByTitle(title string) (*Download, error) {
	var download Download
	if err := db.db.Where("title = ?", title).Order("id DESC").First(&download).Error; err != nil {
		return nil, notFound(err)
	}
	return &download, nil
}

// GetDownloadsByStatus retrieves every download in one of the given statuses
func (db *Database) GetDownloadsByStatus(statuses ...DownloadStatus) ([]*Download, error) {
	var downloads []*Download
	err := db.db.Where("status IN ?", statuses).Order("id").Find(&downloads).Error
	return downloads, err
}

// GetActiveDownloads retrieves downloads still tracked by a client
func (db *Database) GetActiveDownloads() ([]*Download, error) {
	return db.GetDownloadsByStatus(DownloadStatusQueued, DownloadStatusDownloading, DownloadStatusPaused)
}

// GetPendingDownloadsForEntity retrieves downloads for an entity that have not reached a final state
func (db *Database) GetPendingDownloadsForEntity(mediaType MediaType, entityID uint) ([]*Download, error) {
	var downloads []*Download
	err := db.db.Where("media_type = ? AND entity_id = ?", mediaType, entityID).Find(&downloads).Error
	if err != nil {
		return nil, err
	}
	pending := downloads[:0]
	for _, d := range downloads {
		if !d.IsTerminal() {
			pending = append(pending, d)
		}
	}
	return pending, nil
}

// CountFailedDownloads counts failed attempts for a release
func (db *Database) CountFailedDownloads(guid, indexer string) (int64, error) {
	var count int64
	err := db.db.Model(&Download{}).
		Where("guid = ? AND indexer = ? AND status = ?", guid, indexer, DownloadStatusFailed).
		Count(&count).Error
	return count, err
}

// CountDownloadsByStatus returns the number of downloads per status
func (db *Database) CountDownloadsByStatus() (map[DownloadStatus]int64, error) {
	var rows []struct {
		Status DownloadStatus
		Count  int64
	}
	err := db.db.Model(&Download{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[DownloadStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// DeleteDownload deletes a download by ID
func (db *Database) DeleteDownload(id uint) error {
	return db.db.Delete(&Download{}, id).Error
}

// Blacklist operations

// UpsertBlacklist creates or refreshes the blacklist entry for a release
func (db *Database) UpsertBlacklist(entry *BlacklistedRelease) error {
	var existing BlacklistedRelease
	err := db.db.Where("guid = ? AND indexer = ?", entry.GUID, entry.Indexer).First(&existing).Error
	switch {
	case err == nil:
		entry.ID = existing.ID
		return db.db.Save(entry).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return db.db.Create(entry).Error
	default:
		return err
	}
}

// GetBlacklistEntry retrieves the blacklist entry for a release, expired or not
func (db *Database) GetBlacklistEntry(guid, indexer string) (*BlacklistedRelease, error) {
	var entry BlacklistedRelease
	if err := db.db.Where("guid = ? AND indexer = ?", guid, indexer).First(&entry).Error; err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

// GetActiveBlacklist retrieves entries that have not expired at now
func (db *Database) GetActiveBlacklist(now time.Time) ([]*BlacklistedRelease, error) {
	var entries []*BlacklistedRelease
	if err := db.db.Find(&entries).Error; err != nil {
		return nil, err
	}
	active := entries[:0]
	for _, e := range entries {
		if e.ActiveAt(now) {
			active = append(active, e)
		}
	}
	return active, nil
}

// DeleteExpiredBlacklist removes entries that expired at or before now
func (db *Database) DeleteExpiredBlacklist(now time.Time) (int64, error) {
	res := db.db.Where("expires_at <= ?", now.UTC()).Delete(&BlacklistedRelease{})
	return res.RowsAffected, res.Error
}

// History operations

// CreateHistory inserts a history record
func (db *Database) CreateHistory(history *History) error {
	return db.db.Create(history).Error
}

// GetHistory retrieves the most recent history records
func (db *Database) GetHistory(limit int) ([]*History, error) {
	var records []*History
	err := db.db.Order("id DESC").Limit(limit).Find(&records).Error
	return records, err
}

// GetHistoryForDownload retrieves history records of a download in insertion order
func (db *Database) GetHistoryForDownload(downloadID uint) ([]*History, error) {
	var records []*History
	err := db.db.Where("download_id = ?", downloadID).Order("id").Find(&records).Error
	return records, err
}
