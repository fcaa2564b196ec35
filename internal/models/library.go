package models

import "gorm.io/gorm"

func first[T any](db *gorm.DB, id uint) (*T, error) {
	var v T
	if err := db.First(&v, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// Create inserts any library entity
func (db *Database) Create(entity interface{}) error {
	return db.db.Create(entity).Error
}

// Save updates every field of any library entity
func (db *Database) Save(entity interface{}) error {
	return db.db.Save(entity).Error
}

// TV

// GetSeries retrieves a series by ID
func (db *Database) GetSeries(id uint) (*Series, error) { return first[Series](db.db, id) }

// GetSeason retrieves a season by ID
func (db *Database) GetSeason(id uint) (*Season, error) { return first[Season](db.db, id) }

// GetEpisode retrieves an episode by ID
func (db *Database) GetEpisode(id uint) (*Episode, error) { return first[Episode](db.db, id) }

// FindEpisode retrieves an episode by its season and episode numbers
func (db *Database) FindEpisode(seriesID uint, season, number int) (*Episode, error) {
	var ep Episode
	err := db.db.Where("series_id = ? AND season = ? AND number = ?", seriesID, season, number).First(&ep).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &ep, nil
}

// GetEpisodesBySeason retrieves every episode of a season ordered by number
func (db *Database) GetEpisodesBySeason(seasonID uint) ([]*Episode, error) {
	var eps []*Episode
	err := db.db.Where("season_id = ?", seasonID).Order("number").Find(&eps).Error
	return eps, err
}

// GetRequestedEpisodes retrieves episodes the user asked for
func (db *Database) GetRequestedEpisodes() ([]*Episode, error) {
	var eps []*Episode
	err := db.db.Where("requested = ?", true).Order("series_id, season, number").Find(&eps).Error
	return eps, err
}

// GetEpisodesWithFile retrieves episodes that have a file on disk
func (db *Database) GetEpisodesWithFile() ([]*Episode, error) {
	var eps []*Episode
	err := db.db.Where("has_file = ?", true).Find(&eps).Error
	return eps, err
}

// CountEpisodesInLibrary counts requested or present episodes of a season
func (db *Database) CountEpisodesInLibrary(seasonID uint) (int64, error) {
	var count int64
	err := db.db.Model(&Episode{}).
		Where("season_id = ? AND (requested = ? OR has_file = ?)", seasonID, true, true).
		Count(&count).Error
	return count, err
}

// CountSeasons counts the seasons of a series
func (db *Database) CountSeasons(seriesID uint) (int64, error) {
	var count int64
	err := db.db.Model(&Season{}).Where("series_id = ?", seriesID).Count(&count).Error
	return count, err
}

// DeleteEpisode deletes an episode by ID
func (db *Database) DeleteEpisode(id uint) error {
	return db.db.Delete(&Episode{}, id).Error
}

// DeleteSeason deletes a season and its remaining episodes
func (db *Database) DeleteSeason(id uint) error {
	if err := db.db.Where("season_id = ?", id).Delete(&Episode{}).Error; err != nil {
		return err
	}
	return db.db.Delete(&Season{}, id).Error
}

// DeleteSeries deletes a series by ID
func (db *Database) DeleteSeries(id uint) error {
	return db.db.Delete(&Series{}, id).Error
}

// Movies

// GetMovie retrieves a movie by ID
func (db *Database) GetMovie(id uint) (*Movie, error) { return first[Movie](db.db, id) }

// GetRequestedMovies retrieves movies the user asked for
func (db *Database) GetRequestedMovies() ([]*Movie, error) {
	var movies []*Movie
	err := db.db.Where("requested = ?", true).Order("id").Find(&movies).Error
	return movies, err
}

// GetMoviesWithFile retrieves movies that have a file on disk
func (db *Database) GetMoviesWithFile() ([]*Movie, error) {
	var movies []*Movie
	err := db.db.Where("has_file = ?", true).Find(&movies).Error
	return movies, err
}

// DeleteMovie deletes a movie by ID
func (db *Database) DeleteMovie(id uint) error {
	return db.db.Delete(&Movie{}, id).Error
}

// Music

// GetArtist retrieves an artist by ID
func (db *Database) GetArtist(id uint) (*Artist, error) { return first[Artist](db.db, id) }

// GetAlbum retrieves an album by ID
func (db *Database) GetAlbum(id uint) (*Album, error) { return first[Album](db.db, id) }

// GetTrack retrieves a track by ID
func (db *Database) GetTrack(id uint) (*Track, error) { return first[Track](db.db, id) }

// GetTracksByAlbum retrieves every track of an album ordered by disc and number
func (db *Database) GetTracksByAlbum(albumID uint) ([]*Track, error) {
	var tracks []*Track
	err := db.db.Where("album_id = ?", albumID).Order("disc, number").Find(&tracks).Error
	return tracks, err
}

// GetRequestedTracks retrieves tracks the user asked for
func (db *Database) GetRequestedTracks() ([]*Track, error) {
	var tracks []*Track
	err := db.db.Where("requested = ?", true).Order("album_id, disc, number").Find(&tracks).Error
	return tracks, err
}

// GetTracksWithFile retrieves tracks that have a file on disk
func (db *Database) GetTracksWithFile() ([]*Track, error) {
	var tracks []*Track
	err := db.db.Where("has_file = ?", true).Find(&tracks).Error
	return tracks, err
}

// CountTracksInLibrary counts requested or present tracks of an album
func (db *Database) CountTracksInLibrary(albumID uint) (int64, error) {
	var count int64
	err := db.db.Model(&Track{}).
		Where("album_id = ? AND (requested = ? OR has_file = ?)", albumID, true, true).
		Count(&count).Error
	return count, err
}

// CountAlbums counts the albums of an artist
func (db *Database) CountAlbums(artistID uint) (int64, error) {
	var count int64
	err := db.db.Model(&Album{}).Where("artist_id = ?", artistID).Count(&count).Error
	return count, err
}

// DeleteTrack deletes a track by ID
func (db *Database) DeleteTrack(id uint) error {
	return db.db.Delete(&Track{}, id).Error
}

// DeleteAlbum deletes an album and its remaining tracks
func (db *Database) DeleteAlbum(id uint) error {
	if err := db.db.Where("album_id = ?", id).Delete(&Track{}).Error; err != nil {
		return err
	}
	return db.db.Delete(&Album{}, id).Error
}

// DeleteArtist deletes an artist by ID
func (db *Database) DeleteArtist(id uint) error {
	return db.db.Delete(&Artist{}, id).Error
}

// Books

// GetAuthor retrieves an author by ID
func (db *Database) GetAuthor(id uint) (*Author, error) { return first[Author](db.db, id) }

// GetBook retrieves a book by ID
func (db *Database) GetBook(id uint) (*Book, error) { return first[Book](db.db, id) }

// GetBooksByAuthor retrieves every book of an author
func (db *Database) GetBooksByAuthor(authorID uint) ([]*Book, error) {
	var books []*Book
	err := db.db.Where("author_id = ?", authorID).Order("id").Find(&books).Error
	return books, err
}

// GetRequestedBooks retrieves books the user asked for
func (db *Database) GetRequestedBooks() ([]*Book, error) {
	var books []*Book
	err := db.db.Where("requested = ?", true).Order("id").Find(&books).Error
	return books, err
}

// GetBooksWithFile retrieves books that have a file on disk
func (db *Database) GetBooksWithFile() ([]*Book, error) {
	var books []*Book
	err := db.db.Where("has_file = ?", true).Find(&books).Error
	return books, err
}

// CountBooksInLibrary counts requested or present books of an author
func (db *Database) CountBooksInLibrary(authorID uint) (int64, error) {
	var count int64
	err := db.db.Model(&Book{}).
		Where("author_id = ? AND (requested = ? OR has_file = ?)", authorID, true, true).
		Count(&count).Error
	return count, err
}

// DeleteBook deletes a book by ID
func (db *Database) DeleteBook(id uint) error {
	return db.db.Delete(&Book{}, id).Error
}

// DeleteAuthor deletes an author and their remaining books
func (db *Database) DeleteAuthor(id uint) error {
	if err := db.db.Where("author_id = ?", id).Delete(&Book{}).Error; err != nil {
		return err
	}
	return db.db.Delete(&Author{}, id).Error
}

// CountFileReferences counts the library entities pointing at a file
func (db *Database) CountFileReferences(path string) (int64, error) {
	var total int64
	for _, model := range []interface{}{&Episode{}, &Movie{}, &Track{}, &Book{}} {
		var count int64
		if err := db.db.Model(model).Where("has_file = ? AND file_path = ?", true, path).Count(&count).Error; err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}
