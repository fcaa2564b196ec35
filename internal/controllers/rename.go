package controllers

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/naming"
)

// renameGroup is one file on disk and the entities it holds
type renameGroup struct {
	path   string
	title  string
	values naming.Values
	leaves []leaf
}

// RenameFiles moves every library file of a media type to the path its
// naming template renders today. It returns the number of files moved.
func (c *ImportController) RenameFiles(ctx context.Context, mt models.MediaType) (int, error) {
	groups, err := c.renameGroups(mt)
	if err != nil {
		return 0, err
	}

	renamed := 0
	for _, g := range groups {
		dest, err := c.destination(mt, g.values, g.path)
		if err != nil {
			c.logger.WithError(err).WithField("path", g.path).Warn("Failed to render file name")
			continue
		}
		if dest == g.path {
			continue
		}

		if err := moveFile(g.path, dest); err != nil {
			c.logger.WithError(err).WithField("path", g.path).Warn("Failed to rename file")
			continue
		}

		err = c.db.Transaction(func(tx *models.Database) error {
			for _, l := range g.leaves {
				l.file.FilePath = dest
				if err := tx.Save(l.entity); err != nil {
					return fmt.Errorf("failed to update library item %d: %w", l.id, err)
				}
			}
			return nil
		})
		if err != nil {
			return renamed, err
		}

		renamed++
		c.history.recordEntity(ctx, models.EventRename, mt, g.leaves[0].id, g.title, fmt.Sprintf("renamed %s to %s", g.path, dest))
		c.logger.WithFields(logrus.Fields{
			"from": g.path,
			"to":   dest,
		}).Info("File renamed")
	}

	c.logger.WithFields(logrus.Fields{
		"media_type": mt,
		"renamed":    renamed,
	}).Info("Rename completed")
	return renamed, nil
}

func (c *ImportController) renameGroups(mt models.MediaType) ([]renameGroup, error) {
	switch mt {
	case models.MediaTypeTV:
		return c.episodeGroups()
	case models.MediaTypeMovie:
		return c.movieGroups()
	case models.MediaTypeMusic:
		return c.trackGroups()
	case models.MediaTypeBook:
		return c.bookGroups()
	}
	return nil, fmt.Errorf("unsupported media type %q", mt)
}

// episodeGroups keeps multi-episode files together so they render once
func (c *ImportController) episodeGroups() ([]renameGroup, error) {
	episodes, err := c.db.GetEpisodesWithFile()
	if err != nil {
		return nil, fmt.Errorf("failed to get episodes: %w", err)
	}
	sort.SliceStable(episodes, func(i, j int) bool {
		if episodes[i].FilePath != episodes[j].FilePath {
			return episodes[i].FilePath < episodes[j].FilePath
		}
		return episodes[i].Number < episodes[j].Number
	})

	series := make(map[uint]*models.Series)
	var groups []renameGroup
	for _, ep := range episodes {
		if n := len(groups); n > 0 && groups[n-1].path == ep.FilePath {
			g := &groups[n-1]
			g.leaves = append(g.leaves, leaf{id: ep.ID, file: &ep.LibraryFile, entity: ep})
			g.values.EndEpisode = ep.Number
			continue
		}

		show, ok := series[ep.SeriesID]
		if !ok {
			show, err = c.db.GetSeries(ep.SeriesID)
			if err != nil {
				c.logger.WithError(err).WithField("episode_id", ep.ID).Warn("Episode without series")
				continue
			}
			series[ep.SeriesID] = show
		}
		groups = append(groups, renameGroup{
			path:  ep.FilePath,
			title: show.Title,
			values: naming.Values{
				SeriesTitle:  show.Title,
				EpisodeTitle: ep.Title,
				Season:       ep.Season,
				Episode:      ep.Number,
				Quality:      ep.QualityName,
				Year:         show.Year,
			},
			leaves: []leaf{{id: ep.ID, file: &ep.LibraryFile, entity: ep}},
		})
	}
	return groups, nil
}

func (c *ImportController) movieGroups() ([]renameGroup, error) {
	movies, err := c.db.GetMoviesWithFile()
	if err != nil {
		return nil, fmt.Errorf("failed to get movies: %w", err)
	}
	groups := make([]renameGroup, 0, len(movies))
	for _, m := range movies {
		groups = append(groups, renameGroup{
			path:   m.FilePath,
			title:  m.Title,
			values: naming.Values{MovieTitle: m.Title, Year: m.Year, Quality: m.QualityName},
			leaves: []leaf{{id: m.ID, file: &m.LibraryFile, entity: m}},
		})
	}
	return groups, nil
}

func (c *ImportController) trackGroups() ([]renameGroup, error) {
	tracks, err := c.db.GetTracksWithFile()
	if err != nil {
		return nil, fmt.Errorf("failed to get tracks: %w", err)
	}

	albums := make(map[uint]*models.Album)
	artists := make(map[uint]*models.Artist)
	groups := make([]renameGroup, 0, len(tracks))
	for _, t := range tracks {
		album, ok := albums[t.AlbumID]
		if !ok {
			album, err = c.db.GetAlbum(t.AlbumID)
			if err != nil {
				c.logger.WithError(err).WithField("track_id", t.ID).Warn("Track without album")
				continue
			}
			albums[t.AlbumID] = album
		}
		artist, ok := artists[album.ArtistID]
		if !ok {
			artist, err = c.db.GetArtist(album.ArtistID)
			if err != nil {
				c.logger.WithError(err).WithField("album_id", album.ID).Warn("Album without artist")
				continue
			}
			artists[album.ArtistID] = artist
		}
		groups = append(groups, renameGroup{
			path:  t.FilePath,
			title: artist.Name + " - " + album.Title,
			values: naming.Values{
				ArtistName: artist.Name,
				AlbumTitle: album.Title,
				TrackTitle: t.Title,
				Track:      t.Number,
				Disc:       t.Disc,
				Year:       album.Year,
				Quality:    t.QualityName,
			},
			leaves: []leaf{{id: t.ID, file: &t.LibraryFile, entity: t}},
		})
	}
	return groups, nil
}

func (c *ImportController) bookGroups() ([]renameGroup, error) {
	books, err := c.db.GetBooksWithFile()
	if err != nil {
		return nil, fmt.Errorf("failed to get books: %w", err)
	}

	authors := make(map[uint]*models.Author)
	groups := make([]renameGroup, 0, len(books))
	for _, b := range books {
		author, ok := authors[b.AuthorID]
		if !ok {
			author, err = c.db.GetAuthor(b.AuthorID)
			if err != nil {
				c.logger.WithError(err).WithField("book_id", b.ID).Warn("Book without author")
				continue
			}
			authors[b.AuthorID] = author
		}
		groups = append(groups, renameGroup{
			path:   b.FilePath,
			title:  b.Title,
			values: naming.Values{AuthorName: author.Name, BookTitle: b.Title, Year: b.Year, Quality: b.QualityName},
			leaves: []leaf{{id: b.ID, file: &b.LibraryFile, entity: b}},
		})
	}
	return groups, nil
}
