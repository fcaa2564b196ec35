package models

import "fmt"

// MediaType represents the kind of media a release or library entity belongs to
type MediaType string

const (
	MediaTypeTV    MediaType = "tv"
	MediaTypeMovie MediaType = "movie"
	MediaTypeMusic MediaType = "music"
	MediaTypeBook  MediaType = "book"
)

// MediaTypes lists every supported media type
var MediaTypes = []MediaType{MediaTypeTV, MediaTypeMovie, MediaTypeMusic, MediaTypeBook}

// ParseMediaType validates a media type name
func ParseMediaType(s string) (MediaType, error) {
	for _, mt := range MediaTypes {
		if string(mt) == s {
			return mt, nil
		}
	}
	return "", fmt.Errorf("unknown media type %q", s)
}

// DownloadStatus represents the lifecycle state of a download
type DownloadStatus string

const (
	DownloadStatusQueued      DownloadStatus = "queued"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusPaused      DownloadStatus = "paused"
	DownloadStatusCompleted   DownloadStatus = "completed"
	DownloadStatusImporting   DownloadStatus = "importing"
	DownloadStatusFailed      DownloadStatus = "failed"
)

// FailureType classifies why a release was blacklisted
type FailureType string

const (
	FailureTypeGrab     FailureType = "grab"
	FailureTypeDownload FailureType = "download"
	FailureTypeImport   FailureType = "import"
)

// EventType names the side-channel events fired at lifecycle transitions
type EventType string

const (
	EventGrab              EventType = "grab"
	EventDownloadCompleted EventType = "download-completed"
	EventDownloadFailed    EventType = "download-failed"
	EventImportCompleted   EventType = "import-completed"
	EventImportFailed      EventType = "import-failed"
	EventUpgrade           EventType = "upgrade"
	EventRename            EventType = "rename"
	EventDelete            EventType = "delete"
)
