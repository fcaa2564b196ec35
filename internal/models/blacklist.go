package models

import "time"

// BlacklistedRelease excludes a release from search results until it expires
type BlacklistedRelease struct {
	ID            uint   `gorm:"primaryKey"`
	GUID          string `gorm:"uniqueIndex:idx_blacklist_release"`
	Indexer       string `gorm:"uniqueIndex:idx_blacklist_release"`
	Title         string
	Reason        string
	FailureType   FailureType
	BlacklistedAt time.Time
	ExpiresAt     time.Time `gorm:"index"`
}

// ActiveAt reports whether the entry still excludes its release at t
func (b *BlacklistedRelease) ActiveAt(t time.Time) bool {
	return t.Before(b.ExpiresAt)
}

// History records a lifecycle event for auditing
type History struct {
	ID          uint      `gorm:"primaryKey"`
	EventID     string    `gorm:"uniqueIndex"`
	EventType   EventType `gorm:"index"`
	MediaType   MediaType
	EntityID    uint
	DownloadID  uint `gorm:"index"`
	SourceTitle string
	Quality     string
	Message     string
	CreatedAt   time.Time
}
