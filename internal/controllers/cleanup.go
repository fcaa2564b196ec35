package controllers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/parser"
)

// RemovalResult lists the entities removed by a cleanup, leaf first
type RemovalResult struct {
	Removed     []string `json:"removed"`
	FileDeleted bool     `json:"fileDeleted"`
}

func (r *RemovalResult) add(kind string, id uint) {
	r.Removed = append(r.Removed, fmt.Sprintf("%s %d", kind, id))
}

// CleanupController removes library entities and the parents they leave empty
type CleanupController struct {
	db        *models.Database
	downloads *DownloadController
	history   *HistoryController
	logger    *logrus.Logger
}

// NewCleanupController creates a new cleanup controller
func NewCleanupController(db *models.Database, downloads *DownloadController, history *HistoryController, logger *logrus.Logger) *CleanupController {
	return &CleanupController{
		db:        db,
		downloads: downloads,
		history:   history,
		logger:    logger,
	}
}

// orphanedFile returns the path of a library file no other entity uses
func (c *CleanupController) orphanedFile(f models.LibraryFile) (string, error) {
	if !f.HasFile || f.FilePath == "" {
		return "", nil
	}
	refs, err := c.db.CountFileReferences(f.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to count file references: %w", err)
	}
	if refs > 1 {
		return "", nil
	}
	return f.FilePath, nil
}

// removeFile deletes a file whose entity is already gone from the database
func (c *CleanupController) removeFile(path string) bool {
	if path == "" {
		return false
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.WithError(err).WithField("path", path).Error("Failed to delete library file")
		return false
	}
	return true
}

// releaseEpisodeDownloads cancels the pending downloads recorded against an
// episode. A season pack moves to another episode of the season that stays in
// the library and is only cancelled when none is left.
func (c *CleanupController) releaseEpisodeDownloads(ctx context.Context, ep *models.Episode, siblings []*models.Episode, deleteFiles bool) error {
	downloads, err := c.db.GetPendingDownloadsForEntity(models.MediaTypeTV, ep.ID)
	if err != nil {
		return fmt.Errorf("failed to get pending downloads: %w", err)
	}

	var heir *models.Episode
	for _, s := range siblings {
		if s.ID != ep.ID && (s.Requested || s.HasFile) {
			heir = s
			break
		}
	}

	for _, d := range downloads {
		if tv, ok := parser.Parse(d.Title, models.MediaTypeTV).TV(); ok && tv.IsSeasonPack && heir != nil {
			d.EntityID = heir.ID
			if err := c.db.UpdateDownload(d); err != nil {
				return fmt.Errorf("failed to update download: %w", err)
			}
			c.logger.WithFields(logrus.Fields{
				"download_id": d.ID,
				"title":       d.Title,
				"episode_id":  heir.ID,
			}).Info("Season pack kept for remaining episodes")
			continue
		}
		if err := c.downloads.Cancel(ctx, d.ID, deleteFiles); err != nil {
			return err
		}
	}
	return nil
}

// RemoveEpisode deletes an episode, then its season when no episode is left
// in the library, then the series when it has no season left
func (c *CleanupController) RemoveEpisode(ctx context.Context, id uint, deleteFiles bool) (*RemovalResult, error) {
	ep, err := c.db.GetEpisode(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}
	series, err := c.db.GetSeries(ep.SeriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to get series: %w", err)
	}

	siblings, err := c.db.GetEpisodesBySeason(ep.SeasonID)
	if err != nil {
		return nil, fmt.Errorf("failed to get season episodes: %w", err)
	}
	if err := c.releaseEpisodeDownloads(ctx, ep, siblings, deleteFiles); err != nil {
		return nil, err
	}

	result := &RemovalResult{}
	var orphan string
	if deleteFiles {
		if orphan, err = c.orphanedFile(ep.LibraryFile); err != nil {
			return nil, err
		}
	}

	seasonDeleted := false
	err = c.db.Transaction(func(tx *models.Database) error {
		if err := tx.DeleteEpisode(ep.ID); err != nil {
			return fmt.Errorf("failed to delete episode: %w", err)
		}
		remaining, err := tx.CountEpisodesInLibrary(ep.SeasonID)
		if err != nil {
			return fmt.Errorf("failed to count episodes: %w", err)
		}
		if remaining > 0 {
			return nil
		}
		if err := tx.DeleteSeason(ep.SeasonID); err != nil {
			return fmt.Errorf("failed to delete season: %w", err)
		}
		seasonDeleted = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.FileDeleted = c.removeFile(orphan)
	result.add("episode", ep.ID)
	label := fmt.Sprintf("%s S%02dE%02d", series.Title, ep.Season, ep.Number)
	c.history.recordEntity(ctx, models.EventDelete, models.MediaTypeTV, ep.ID, label, "episode removed")

	if !seasonDeleted {
		c.logResult(models.MediaTypeTV, label, result)
		return result, nil
	}
	result.add("season", ep.SeasonID)
	c.history.recordEntity(ctx, models.EventDelete, models.MediaTypeTV, ep.SeasonID, fmt.Sprintf("%s Season %d", series.Title, ep.Season), "season removed")

	// Episodes deleted with the season have nothing left to import into
	for _, s := range siblings {
		if s.ID == ep.ID {
			continue
		}
		if err := c.downloads.CancelForEntity(ctx, models.MediaTypeTV, s.ID, deleteFiles); err != nil {
			return nil, err
		}
	}

	seriesDeleted := false
	err = c.db.Transaction(func(tx *models.Database) error {
		seasons, err := tx.CountSeasons(series.ID)
		if err != nil {
			return fmt.Errorf("failed to count seasons: %w", err)
		}
		if seasons > 0 {
			return nil
		}
		if err := tx.DeleteSeries(series.ID); err != nil {
			return fmt.Errorf("failed to delete series: %w", err)
		}
		seriesDeleted = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if seriesDeleted {
		result.add("series", series.ID)
		c.history.recordEntity(ctx, models.EventDelete, models.MediaTypeTV, series.ID, series.Title, "series removed")
	}

	c.logResult(models.MediaTypeTV, label, result)
	return result, nil
}

// RemoveMovie deletes a movie
func (c *CleanupController) RemoveMovie(ctx context.Context, id uint, deleteFiles bool) (*RemovalResult, error) {
	movie, err := c.db.GetMovie(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get movie: %w", err)
	}

	if err := c.downloads.CancelForEntity(ctx, models.MediaTypeMovie, movie.ID, deleteFiles); err != nil {
		return nil, err
	}

	result := &RemovalResult{}
	var orphan string
	if deleteFiles {
		if orphan, err = c.orphanedFile(movie.LibraryFile); err != nil {
			return nil, err
		}
	}
	if err := c.db.DeleteMovie(movie.ID); err != nil {
		return nil, fmt.Errorf("failed to delete movie: %w", err)
	}
	result.FileDeleted = c.removeFile(orphan)
	result.add("movie", movie.ID)
	c.history.recordEntity(ctx, models.EventDelete, models.MediaTypeMovie, movie.ID, movie.Title, "movie removed")

	c.logResult(models.MediaTypeMovie, movie.Title, result)
	return result, nil
}

// RemoveTrack deletes a track, then its album when no track is left in the
// library, then the artist when they have no album left
func (c *CleanupController) RemoveTrack(ctx context.Context, id uint, deleteFiles bool) (*RemovalResult, error) {
	track, err := c.db.GetTrack(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}

	result := &RemovalResult{}
	var orphan string
	if deleteFiles {
		if orphan, err = c.orphanedFile(track.LibraryFile); err != nil {
			return nil, err
		}
	}

	albumDeleted := false
	err = c.db.Transaction(func(tx *models.Database) error {
		if err := tx.DeleteTrack(track.ID); err != nil {
			return fmt.Errorf("failed to delete track: %w", err)
		}
		remaining, err := tx.CountTracksInLibrary(track.AlbumID)
		if err != nil {
			return fmt.Errorf("failed to count tracks: %w", err)
		}
		if remaining > 0 {
			return nil
		}
		if err := tx.DeleteAlbum(track.AlbumID); err != nil {
			return fmt.Errorf("failed to delete album: %w", err)
		}
		albumDeleted = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.FileDeleted = c.removeFile(orphan)
	result.add("track", track.ID)
	c.history.recordEntity(ctx, models.EventDelete, models.MediaTypeMusic, track.ID, track.Title, "track removed")

	if !albumDeleted {
		c.logResult(models.MediaTypeMusic, track.Title, result)
		return result, nil
	}
	result.add("album", track.AlbumID)
	c.history.recordEntity(ctx, models.EventDelete, models.MediaTypeMusic, track.AlbumID, track.Title, "album removed")

	// Album downloads have nothing left to import into
	if err := c.downloads.CancelForEntity(ctx, models.MediaTypeMusic, track.AlbumID, deleteFiles); err != nil {
		return nil, err
	}

	artistDeleted := false
	err = c.db.Transaction(func(tx *models.Database) error {
		albums, err := tx.CountAlbums(track.ArtistID)
		if err != nil {
			return fmt.Errorf("failed to count albums: %w", err)
		}
		if albums > 0 {
			return nil
		}
		if err := tx.DeleteArtist(track.ArtistID); err != nil {
			return fmt.Errorf("failed to delete artist: %w", err)
		}
		artistDeleted = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if artistDeleted {
		result.add("artist", track.ArtistID)
		c.history.recordEntity(ctx, models.EventDelete, models.MediaTypeMusic, track.ArtistID, track.Title, "artist removed")
	}

	c.logResult(models.MediaTypeMusic, track.Title, result)
	return result, nil
}

// RemoveBook deletes a book, then its author when no book is left in the library
func (c *CleanupController) RemoveBook(ctx context.Context, id uint, deleteFiles bool) (*RemovalResult, error) {
	book, err := c.db.GetBook(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}

	if err := c.downloads.CancelForEntity(ctx, models.MediaTypeBook, book.ID, deleteFiles); err != nil {
		return nil, err
	}

	result := &RemovalResult{}
	var orphan string
	if deleteFiles {
		if orphan, err = c.orphanedFile(book.LibraryFile); err != nil {
			return nil, err
		}
	}

	authorDeleted := false
	err = c.db.Transaction(func(tx *models.Database) error {
		if err := tx.DeleteBook(book.ID); err != nil {
			return fmt.Errorf("failed to delete book: %w", err)
		}
		remaining, err := tx.CountBooksInLibrary(book.AuthorID)
		if err != nil {
			return fmt.Errorf("failed to count books: %w", err)
		}
		if remaining > 0 {
			return nil
		}
		if err := tx.DeleteAuthor(book.AuthorID); err != nil {
			return fmt.Errorf("failed to delete author: %w", err)
		}
		authorDeleted = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.FileDeleted = c.removeFile(orphan)
	result.add("book", book.ID)
	c.history.recordEntity(ctx, models.EventDelete, models.MediaTypeBook, book.ID, book.Title, "book removed")
	if authorDeleted {
		result.add("author", book.AuthorID)
		c.history.recordEntity(ctx, models.EventDelete, models.MediaTypeBook, book.AuthorID, book.Title, "author removed")
	}

	c.logResult(models.MediaTypeBook, book.Title, result)
	return result, nil
}

func (c *CleanupController) logResult(mt models.MediaType, title string, result *RemovalResult) {
	c.logger.WithFields(logrus.Fields{
		"media_type":   mt,
		"title":        title,
		"removed":      result.Removed,
		"file_deleted": result.FileDeleted,
	}).Info("Library item removed")
}
