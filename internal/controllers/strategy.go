package controllers

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/parser"
	"github.com/amaumene/grabarr/internal/quality"
	"github.com/amaumene/grabarr/internal/services/newznab"
)

// StrategyType represents the type of download strategy
type StrategyType string

const (
	StrategySingleEpisode StrategyType = "single_episode"
	StrategySeasonPack    StrategyType = "season_pack"
	StrategySingleMovie   StrategyType = "single_movie"
	StrategyAlbum         StrategyType = "album"
	StrategyBook          StrategyType = "book"
)

// Target is a wanted library item and the strategy used to search for it.
// EntityID is the episode, movie, album or book a download is recorded against.
type Target struct {
	Type      StrategyType
	MediaType models.MediaType
	EntityID  uint

	Title   string // series, movie, album or book title
	Creator string // artist or author
	Year    int
	Season  int
	Episode int
	ISBN    string

	Profile        quality.Profile
	HasFile        bool
	CurrentQuality string
}

// Request builds the indexer query of the target
func (t Target) Request() newznab.SearchRequest {
	switch t.Type {
	case StrategySingleEpisode:
		season, episode := t.Season, t.Episode
		return newznab.SearchRequest{Type: newznab.TypeTVSearch, Query: t.Title, Season: &season, Episode: &episode}
	case StrategySeasonPack:
		season := t.Season
		return newznab.SearchRequest{Type: newznab.TypeTVSearch, Query: t.Title, Season: &season}
	case StrategyAlbum:
		return newznab.SearchRequest{
			Type:   newznab.TypeMusic,
			Query:  t.Creator + " " + t.Title,
			Artist: t.Creator,
			Album:  t.Title,
		}
	case StrategyBook:
		return newznab.SearchRequest{
			Type:   newznab.TypeBook,
			Query:  t.Creator + " " + t.Title,
			Author: t.Creator,
			Title:  t.Title,
		}
	default:
		return newznab.SearchRequest{Type: newznab.TypeMovie, Query: t.Title}
	}
}

// String describes the target for logs
func (t Target) String() string {
	switch t.Type {
	case StrategySingleEpisode:
		return fmt.Sprintf("%s S%02dE%02d", t.Title, t.Season, t.Episode)
	case StrategySeasonPack:
		return fmt.Sprintf("%s S%02d", t.Title, t.Season)
	case StrategyAlbum, StrategyBook:
		return t.Creator + " - " + t.Title
	default:
		if t.Year > 0 {
			return fmt.Sprintf("%s (%d)", t.Title, t.Year)
		}
		return t.Title
	}
}

// StrategyController determines what to search for
type StrategyController struct {
	db     *models.Database
	cfg    *config.Config
	logger *logrus.Logger
}

// NewStrategyController creates a new strategy controller
func NewStrategyController(db *models.Database, cfg *config.Config, logger *logrus.Logger) *StrategyController {
	return &StrategyController{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// WantedTargets returns every requested item that is missing or below its
// cutoff and not already being downloaded
func (c *StrategyController) WantedTargets() ([]Target, error) {
	var targets []Target

	tv, err := c.tvTargets()
	if err != nil {
		return nil, err
	}
	targets = append(targets, tv...)

	movies, err := c.movieTargets()
	if err != nil {
		return nil, err
	}
	targets = append(targets, movies...)

	albums, err := c.albumTargets()
	if err != nil {
		return nil, err
	}
	targets = append(targets, albums...)

	books, err := c.bookTargets()
	if err != nil {
		return nil, err
	}
	targets = append(targets, books...)

	c.logger.WithField("count", len(targets)).Debug("Wanted targets determined")
	return targets, nil
}

// wanted reports whether a leaf needs a download under its profile
func wanted(f models.LibraryFile, profile quality.Profile) bool {
	if !f.HasFile {
		return true
	}
	return profile.UpgradeAllowed && quality.IsCutoffUnmet(f.QualityName, profile.Items, profile.Cutoff)
}

func (c *StrategyController) profileFor(mt models.MediaType, name string) (quality.Profile, error) {
	profile, ok := c.cfg.ProfileFor(mt, name)
	if !ok {
		return quality.Profile{}, fmt.Errorf("no quality profile for %s %q", mt, name)
	}
	return profile, nil
}

func (c *StrategyController) pending(mt models.MediaType, id uint) (bool, error) {
	downloads, err := c.db.GetPendingDownloadsForEntity(mt, id)
	if err != nil {
		return false, fmt.Errorf("failed to get pending downloads: %w", err)
	}
	return len(downloads) > 0, nil
}

type seasonKey struct {
	seriesID uint
	season   int
}

type episodeKey struct {
	seriesID uint
	season   int
	number   int
}

// tvCoverage returns the episodes and whole seasons covered by downloads in progress
func (c *StrategyController) tvCoverage() (map[episodeKey]bool, map[seasonKey]bool, error) {
	downloads, err := c.db.GetDownloadsByStatus(
		models.DownloadStatusQueued,
		models.DownloadStatusDownloading,
		models.DownloadStatusPaused,
		models.DownloadStatusCompleted,
		models.DownloadStatusImporting,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get downloads: %w", err)
	}

	episodes := make(map[episodeKey]bool)
	seasons := make(map[seasonKey]bool)
	for _, d := range downloads {
		if d.MediaType != models.MediaTypeTV || d.IsTerminal() {
			continue
		}
		ep, err := c.db.GetEpisode(d.EntityID)
		if err != nil {
			continue
		}
		episodes[episodeKey{ep.SeriesID, ep.Season, ep.Number}] = true

		tv, _ := parser.Parse(d.Title, models.MediaTypeTV).TV()
		if tv.SeasonNumber == nil {
			continue
		}
		if tv.IsSeasonPack {
			seasons[seasonKey{ep.SeriesID, *tv.SeasonNumber}] = true
			continue
		}
		if tv.EpisodeNumber != nil {
			end := *tv.EpisodeNumber
			if tv.EndEpisodeNumber != nil {
				end = *tv.EndEpisodeNumber
			}
			for n := *tv.EpisodeNumber; n <= end; n++ {
				episodes[episodeKey{ep.SeriesID, *tv.SeasonNumber, n}] = true
			}
		}
	}
	return episodes, seasons, nil
}

// tvTargets searches whole seasons when every episode of a season with more
// than one episode is missing and none is downloading, single episodes otherwise
func (c *StrategyController) tvTargets() ([]Target, error) {
	requested, err := c.db.GetRequestedEpisodes()
	if err != nil {
		return nil, fmt.Errorf("failed to get requested episodes: %w", err)
	}
	coveredEpisodes, coveredSeasons, err := c.tvCoverage()
	if err != nil {
		return nil, err
	}

	series := make(map[uint]*models.Series)
	packChecked := make(map[uint]bool)
	var targets []Target

	for _, ep := range requested {
		show, ok := series[ep.SeriesID]
		if !ok {
			show, err = c.db.GetSeries(ep.SeriesID)
			if err != nil {
				c.logger.WithError(err).WithField("episode_id", ep.ID).Warn("Episode without series")
				continue
			}
			series[ep.SeriesID] = show
		}
		profile, err := c.profileFor(models.MediaTypeTV, show.ProfileID)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"series":     show.Title,
				"episode_id": ep.ID,
			}).Warn("Skipping episode with unknown quality profile")
			continue
		}

		if !wanted(ep.LibraryFile, profile) {
			continue
		}
		if coveredSeasons[seasonKey{ep.SeriesID, ep.Season}] || coveredEpisodes[episodeKey{ep.SeriesID, ep.Season, ep.Number}] {
			continue
		}

		if !packChecked[ep.SeasonID] {
			packChecked[ep.SeasonID] = true
			pack, err := c.seasonPackTarget(show, ep, profile, coveredEpisodes)
			if err != nil {
				return nil, err
			}
			if pack != nil {
				targets = append(targets, *pack)
				coveredSeasons[seasonKey{ep.SeriesID, ep.Season}] = true
				continue
			}
		}

		targets = append(targets, Target{
			Type:           StrategySingleEpisode,
			MediaType:      models.MediaTypeTV,
			EntityID:       ep.ID,
			Title:          show.Title,
			Year:           show.Year,
			Season:         ep.Season,
			Episode:        ep.Number,
			Profile:        profile,
			HasFile:        ep.HasFile,
			CurrentQuality: ep.QualityName,
		})
	}
	return targets, nil
}

func (c *StrategyController) seasonPackTarget(show *models.Series, first *models.Episode, profile quality.Profile, covered map[episodeKey]bool) (*Target, error) {
	episodes, err := c.db.GetEpisodesBySeason(first.SeasonID)
	if err != nil {
		return nil, fmt.Errorf("failed to get season episodes: %w", err)
	}
	if len(episodes) < 2 {
		return nil, nil
	}
	for _, ep := range episodes {
		if !ep.Requested || ep.HasFile || covered[episodeKey{ep.SeriesID, ep.Season, ep.Number}] {
			return nil, nil
		}
	}

	c.logger.WithFields(logrus.Fields{
		"series":   show.Title,
		"season":   first.Season,
		"episodes": len(episodes),
	}).Debug("Strategy: Season pack")

	return &Target{
		Type:      StrategySeasonPack,
		MediaType: models.MediaTypeTV,
		EntityID:  episodes[0].ID,
		Title:     show.Title,
		Year:      show.Year,
		Season:    first.Season,
		Profile:   profile,
	}, nil
}

func (c *StrategyController) movieTargets() ([]Target, error) {
	movies, err := c.db.GetRequestedMovies()
	if err != nil {
		return nil, fmt.Errorf("failed to get requested movies: %w", err)
	}

	var targets []Target
	for _, m := range movies {
		profile, err := c.profileFor(models.MediaTypeMovie, m.ProfileID)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"movie":    m.Title,
				"movie_id": m.ID,
			}).Warn("Skipping movie with unknown quality profile")
			continue
		}
		if !wanted(m.LibraryFile, profile) {
			continue
		}
		busy, err := c.pending(models.MediaTypeMovie, m.ID)
		if err != nil {
			return nil, err
		}
		if busy {
			continue
		}
		targets = append(targets, Target{
			Type:           StrategySingleMovie,
			MediaType:      models.MediaTypeMovie,
			EntityID:       m.ID,
			Title:          m.Title,
			Year:           m.Year,
			Profile:        profile,
			HasFile:        m.HasFile,
			CurrentQuality: m.QualityName,
		})
	}
	return targets, nil
}

// albumTargets groups requested tracks by album. An album with every wanted
// track present is an upgrade at the lowest quality among them.
func (c *StrategyController) albumTargets() ([]Target, error) {
	tracks, err := c.db.GetRequestedTracks()
	if err != nil {
		return nil, fmt.Errorf("failed to get requested tracks: %w", err)
	}

	type albumState struct {
		wanted  bool
		missing bool
		lowest  string
	}
	order := make([]uint, 0)
	states := make(map[uint]*albumState)
	artists := make(map[uint]*models.Artist)
	profiles := make(map[uint]quality.Profile)

	for _, tr := range tracks {
		artist, ok := artists[tr.ArtistID]
		if !ok {
			artist, err = c.db.GetArtist(tr.ArtistID)
			if err != nil {
				c.logger.WithError(err).WithField("track_id", tr.ID).Warn("Track without artist")
				continue
			}
			artists[tr.ArtistID] = artist
		}
		profile, err := c.profileFor(models.MediaTypeMusic, artist.ProfileID)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"artist":   artist.Name,
				"track_id": tr.ID,
			}).Warn("Skipping track with unknown quality profile")
			continue
		}
		profiles[tr.AlbumID] = profile

		state, ok := states[tr.AlbumID]
		if !ok {
			state = &albumState{}
			states[tr.AlbumID] = state
			order = append(order, tr.AlbumID)
		}
		if !wanted(tr.LibraryFile, profile) {
			continue
		}
		state.wanted = true
		if !tr.HasFile {
			state.missing = true
			continue
		}
		if state.lowest == "" || quality.RankOf(profile.Items, tr.QualityName) < quality.RankOf(profile.Items, state.lowest) {
			state.lowest = tr.QualityName
		}
	}

	var targets []Target
	for _, albumID := range order {
		state := states[albumID]
		if !state.wanted {
			continue
		}
		busy, err := c.pending(models.MediaTypeMusic, albumID)
		if err != nil {
			return nil, err
		}
		if busy {
			continue
		}
		album, err := c.db.GetAlbum(albumID)
		if err != nil {
			return nil, fmt.Errorf("failed to get album: %w", err)
		}
		target := Target{
			Type:      StrategyAlbum,
			MediaType: models.MediaTypeMusic,
			EntityID:  album.ID,
			Title:     album.Title,
			Year:      album.Year,
			Profile:   profiles[albumID],
		}
		if artist, ok := artists[album.ArtistID]; ok {
			target.Creator = artist.Name
		}
		if !state.missing {
			target.HasFile = true
			target.CurrentQuality = state.lowest
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func (c *StrategyController) bookTargets() ([]Target, error) {
	books, err := c.db.GetRequestedBooks()
	if err != nil {
		return nil, fmt.Errorf("failed to get requested books: %w", err)
	}

	var targets []Target
	for _, b := range books {
		author, err := c.db.GetAuthor(b.AuthorID)
		if err != nil {
			c.logger.WithError(err).WithField("book_id", b.ID).Warn("Book without author")
			continue
		}
		profile, err := c.profileFor(models.MediaTypeBook, author.ProfileID)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"author":  author.Name,
				"book_id": b.ID,
			}).Warn("Skipping book with unknown quality profile")
			continue
		}
		if !wanted(b.LibraryFile, profile) {
			continue
		}
		busy, err := c.pending(models.MediaTypeBook, b.ID)
		if err != nil {
			return nil, err
		}
		if busy {
			continue
		}
		targets = append(targets, Target{
			Type:           StrategyBook,
			MediaType:      models.MediaTypeBook,
			EntityID:       b.ID,
			Title:          b.Title,
			Creator:        author.Name,
			Year:           b.Year,
			ISBN:           b.ISBN,
			Profile:        profile,
			HasFile:        b.HasFile,
			CurrentQuality: b.QualityName,
		})
	}
	return targets, nil
}
