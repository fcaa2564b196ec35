package models

import "time"

// Candidate is a release advertised by an indexer
type Candidate struct {
	Title       string    `json:"title"`
	DownloadURL string    `json:"downloadUrl"`
	Size        int64     `json:"size"`
	GUID        string    `json:"guid"`
	Indexer     string    `json:"indexer"`
	Protocol    string    `json:"protocol"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Key identifies a release across indexers
func (c Candidate) Key() string {
	return c.Indexer + "|" + c.GUID
}
