package models

import "time"

// Library entities. Leaves (Episode, Movie, Track, Book) carry the file state;
// parents exist only while at least one child is requested or has a file.

// Series represents a TV show in the library
type Series struct {
	ID        uint   `gorm:"primaryKey"`
	Title     string `gorm:"index"`
	Year      int
	ProfileID string
	Seasons   []Season `gorm:"foreignKey:SeriesID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Season groups the episodes of a series
type Season struct {
	ID        uint `gorm:"primaryKey"`
	SeriesID  uint `gorm:"index"`
	Number    int
	Episodes  []Episode `gorm:"foreignKey:SeasonID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Episode is a single TV episode
type Episode struct {
	ID       uint `gorm:"primaryKey"`
	SeriesID uint `gorm:"index"`
	SeasonID uint `gorm:"index"`
	Season   int
	Number   int
	Title    string
	LibraryFile
}

// Movie is a single film
type Movie struct {
	ID        uint   `gorm:"primaryKey"`
	Title     string `gorm:"index"`
	Year      int
	ProfileID string
	LibraryFile
}

// Artist owns albums
type Artist struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"index"`
	ProfileID string
	Albums    []Album `gorm:"foreignKey:ArtistID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Album groups the tracks of a release
type Album struct {
	ID        uint `gorm:"primaryKey"`
	ArtistID  uint `gorm:"index"`
	Title     string
	Year      int
	Tracks    []Track `gorm:"foreignKey:AlbumID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Track is a single music track
type Track struct {
	ID       uint `gorm:"primaryKey"`
	AlbumID  uint `gorm:"index"`
	ArtistID uint `gorm:"index"`
	Disc     int
	Number   int
	Title    string
	LibraryFile
}

// Author owns books
type Author struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"index"`
	ProfileID string
	Books     []Book `gorm:"foreignKey:AuthorID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Book is a single ebook or audiobook
type Book struct {
	ID       uint `gorm:"primaryKey"`
	AuthorID uint `gorm:"index"`
	Title    string
	ISBN     string `gorm:"index"`
	Year     int
	LibraryFile
}

// LibraryFile is the file state shared by every leaf entity
type LibraryFile struct {
	Requested   bool `gorm:"index"`
	HasFile     bool
	FilePath    string
	QualityName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InLibrary reports whether the entity is requested or present on disk
func (f LibraryFile) InLibrary() bool {
	return f.Requested || f.HasFile
}
