package controllers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/metrics"
	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/naming"
	"github.com/amaumene/grabarr/internal/parser"
	"github.com/amaumene/grabarr/internal/telemetry"
	"github.com/amaumene/grabarr/internal/utils"
)

// ErrNothingImported is returned when no file of a download reached the library
var ErrNothingImported = errors.New("no files imported")

var sampleRegex = regexp.MustCompile(`(?i)(?:^|[\W_])sample(?:[\W_]|$)`)

// ImportedFile is a file moved into the library
type ImportedFile struct {
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	EntityIDs   []uint   `json:"entityIds"`
	Replaced    []string `json:"replaced,omitempty"`
}

// FailedFile is a file left in place, with the reason
type FailedFile struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// ImportResult reports every file of an import
type ImportResult struct {
	DownloadID uint           `json:"downloadId"`
	Imported   []ImportedFile `json:"imported"`
	Failed     []FailedFile   `json:"failed"`
	Skipped    []string       `json:"skipped,omitempty"`
}

// leaf is a library entity receiving a file
type leaf struct {
	id     uint
	file   *models.LibraryFile
	entity interface{}
}

// ImportController moves downloaded files into the library
type ImportController struct {
	db        *models.Database
	media     config.MediaSettings
	threshold float64
	blacklist *BlacklistController
	history   *HistoryController
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

// NewImportController creates a new import controller
func NewImportController(db *models.Database, cfg *config.Config, blacklist *BlacklistController, history *HistoryController, m *metrics.Metrics, logger *logrus.Logger) *ImportController {
	return &ImportController{
		db:        db,
		media:     cfg.Media,
		threshold: cfg.Search.SimilarityThreshold,
		blacklist: blacklist,
		history:   history,
		metrics:   m,
		logger:    logger,
	}
}

// ImportDownload imports the media files of an importing download. The
// download always ends completed or failed; files that cannot be matched are
// reported without failing the others.
func (c *ImportController) ImportDownload(ctx context.Context, d *models.Download) (*ImportResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "import")
	defer span.End()
	span.SetAttributes(
		attribute.String("title", d.Title),
		attribute.String("media_type", string(d.MediaType)),
	)

	result := &ImportResult{DownloadID: d.ID}

	files, err := c.mediaFiles(d)
	if err != nil {
		return result, c.failImport(ctx, d, err.Error())
	}
	if len(files) == 0 {
		return result, c.failImport(ctx, d, "no media files found in "+d.OutputPath)
	}

	switch d.MediaType {
	case models.MediaTypeTV:
		err = c.importTV(ctx, d, files, result)
	case models.MediaTypeMovie:
		err = c.importMovie(ctx, d, files, result)
	case models.MediaTypeMusic:
		err = c.importMusic(ctx, d, files, result)
	case models.MediaTypeBook:
		err = c.importBook(ctx, d, files, result)
	default:
		err = fmt.Errorf("unsupported media type %q", d.MediaType)
	}
	if err != nil {
		return result, c.failImport(ctx, d, err.Error())
	}

	span.SetAttributes(
		attribute.Int("imported", len(result.Imported)),
		attribute.Int("failed", len(result.Failed)),
	)

	if len(result.Imported) == 0 {
		reason := "no file matched a library item"
		if len(result.Failed) > 0 {
			reason = result.Failed[0].Reason
		}
		return result, c.failImport(ctx, d, reason)
	}

	if err := d.Transition(models.DownloadStatusCompleted); err != nil {
		return result, err
	}
	d.Imported = true
	d.Error = ""
	if err := c.db.UpdateDownload(d); err != nil {
		return result, fmt.Errorf("failed to update download: %w", err)
	}

	outcome := "ok"
	if len(result.Failed) > 0 {
		outcome = "partial"
	}
	c.metrics.Imports.WithLabelValues(string(d.MediaType), outcome).Inc()

	message := fmt.Sprintf("%d file(s) imported, %d failed", len(result.Imported), len(result.Failed))
	c.history.record(ctx, models.EventImportCompleted, d, message)
	c.logger.WithFields(logrus.Fields{
		"download_id": d.ID,
		"title":       d.Title,
		"imported":    len(result.Imported),
		"failed":      len(result.Failed),
	}).Info("Import completed")
	return result, nil
}

func (c *ImportController) failImport(ctx context.Context, d *models.Download, reason string) error {
	if err := d.Fail(reason); err != nil {
		return err
	}
	if err := c.db.UpdateDownload(d); err != nil {
		return fmt.Errorf("failed to update download: %w", err)
	}
	c.metrics.Imports.WithLabelValues(string(d.MediaType), "failed").Inc()

	c.logger.WithFields(logrus.Fields{
		"download_id": d.ID,
		"title":       d.Title,
		"reason":      reason,
	}).Warn("Import failed")
	c.history.record(ctx, models.EventImportFailed, d, reason)

	if err := c.blacklist.RecordFailure(d, models.FailureTypeImport, reason); err != nil {
		c.logger.WithError(err).Error("Failed to blacklist release")
	}
	return fmt.Errorf("%s: %w: %s", d.Title, ErrNothingImported, reason)
}

// mediaFiles lists the media files of the download, samples excluded
func (c *ImportController) mediaFiles(d *models.Download) ([]string, error) {
	if d.OutputPath == "" {
		return nil, fmt.Errorf("download has no output path")
	}
	info, err := os.Stat(d.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read output path: %w", err)
	}
	if !info.IsDir() {
		if parser.IsMediaFile(info.Name(), d.MediaType) && !isSample(info.Name()) {
			return []string{d.OutputPath}, nil
		}
		return nil, nil
	}

	var files []string
	err = filepath.WalkDir(d.OutputPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != d.OutputPath && isSample(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if parser.IsMediaFile(entry.Name(), d.MediaType) && !isSample(entry.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk output path: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func isSample(name string) bool {
	return sampleRegex.MatchString(strings.TrimSuffix(name, filepath.Ext(name)))
}

// parseFile parses a file with the download folder as context
func parseFile(d *models.Download, path string) parser.ParsedRelease {
	rel, err := filepath.Rel(filepath.Dir(d.OutputPath), path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return parser.ParsePath(rel, d.MediaType)
}

// fileQuality is the quality recorded for an imported file
func fileQuality(d *models.Download, parsed parser.ParsedRelease) string {
	if d.Quality != "" {
		return d.Quality
	}
	return parsed.Quality
}

func releaseGroup(d *models.Download, parsed parser.ParsedRelease) string {
	if parsed.ReleaseGroup != "" {
		return parsed.ReleaseGroup
	}
	return parser.Parse(d.Title, d.MediaType).ReleaseGroup
}

func (c *ImportController) importTV(ctx context.Context, d *models.Download, files []string, result *ImportResult) error {
	anchor, err := c.db.GetEpisode(d.EntityID)
	if err != nil {
		return fmt.Errorf("failed to get episode %d: %w", d.EntityID, err)
	}
	series, err := c.db.GetSeries(anchor.SeriesID)
	if err != nil {
		return fmt.Errorf("failed to get series: %w", err)
	}

	for _, file := range files {
		parsed := parseFile(d, file)
		tv, _ := parsed.TV()

		season := anchor.Season
		if tv.SeasonNumber != nil {
			season = *tv.SeasonNumber
		}
		var first, last int
		switch {
		case tv.EpisodeNumber != nil:
			first, last = *tv.EpisodeNumber, *tv.EpisodeNumber
			if tv.EndEpisodeNumber != nil {
				last = *tv.EndEpisodeNumber
			}
		case len(files) == 1 && season == anchor.Season:
			first, last = anchor.Number, anchor.Number
		default:
			result.Failed = append(result.Failed, FailedFile{Source: file, Reason: "no episode number in file name"})
			continue
		}

		var episodes []*models.Episode
		for n := first; n <= last; n++ {
			ep, err := c.db.FindEpisode(series.ID, season, n)
			if err != nil {
				continue
			}
			episodes = append(episodes, ep)
		}
		if len(episodes) == 0 {
			result.Failed = append(result.Failed, FailedFile{
				Source: file,
				Reason: fmt.Sprintf("no episode S%02dE%02d in %s", season, first, series.Title),
			})
			continue
		}

		values := naming.Values{
			SeriesTitle:  series.Title,
			EpisodeTitle: episodes[0].Title,
			Season:       season,
			Episode:      episodes[0].Number,
			Quality:      fileQuality(d, parsed),
			ReleaseGroup: releaseGroup(d, parsed),
			Year:         series.Year,
		}
		if len(episodes) > 1 {
			values.EndEpisode = episodes[len(episodes)-1].Number
		}

		leaves := make([]leaf, 0, len(episodes))
		for _, ep := range episodes {
			leaves = append(leaves, leaf{id: ep.ID, file: &ep.LibraryFile, entity: ep})
		}
		c.place(ctx, d, file, values, leaves, fileQuality(d, parsed), result)
	}
	return nil
}

func (c *ImportController) importMovie(ctx context.Context, d *models.Download, files []string, result *ImportResult) error {
	movie, err := c.db.GetMovie(d.EntityID)
	if err != nil {
		return fmt.Errorf("failed to get movie %d: %w", d.EntityID, err)
	}

	largest, size := "", int64(-1)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			result.Failed = append(result.Failed, FailedFile{Source: file, Reason: err.Error()})
			continue
		}
		if info.Size() > size {
			largest, size = file, info.Size()
		}
	}
	for _, file := range files {
		if file != largest {
			result.Skipped = append(result.Skipped, file)
		}
	}
	if largest == "" {
		return nil
	}

	parsed := parseFile(d, largest)
	values := naming.Values{
		MovieTitle:   movie.Title,
		Year:         movie.Year,
		Quality:      fileQuality(d, parsed),
		ReleaseGroup: releaseGroup(d, parsed),
	}
	c.place(ctx, d, largest, values, []leaf{{id: movie.ID, file: &movie.LibraryFile, entity: movie}}, fileQuality(d, parsed), result)
	return nil
}

func (c *ImportController) importMusic(ctx context.Context, d *models.Download, files []string, result *ImportResult) error {
	album, err := c.db.GetAlbum(d.EntityID)
	if err != nil {
		return fmt.Errorf("failed to get album %d: %w", d.EntityID, err)
	}
	artist, err := c.db.GetArtist(album.ArtistID)
	if err != nil {
		return fmt.Errorf("failed to get artist: %w", err)
	}
	tracks, err := c.db.GetTracksByAlbum(album.ID)
	if err != nil {
		return fmt.Errorf("failed to get tracks: %w", err)
	}

	for _, file := range files {
		parsed := parseFile(d, file)
		music, _ := parsed.Music()

		track := c.matchTrack(tracks, music, parsed.Title)
		if track == nil {
			result.Failed = append(result.Failed, FailedFile{Source: file, Reason: "no matching track on " + album.Title})
			continue
		}

		values := naming.Values{
			ArtistName:   artist.Name,
			AlbumTitle:   album.Title,
			TrackTitle:   track.Title,
			Track:        track.Number,
			Disc:         track.Disc,
			Year:         album.Year,
			Quality:      fileQuality(d, parsed),
			ReleaseGroup: releaseGroup(d, parsed),
		}
		c.place(ctx, d, file, values, []leaf{{id: track.ID, file: &track.LibraryFile, entity: track}}, fileQuality(d, parsed), result)
	}
	return nil
}

// matchTrack finds a track by disc and number, or by title when the file has no number
func (c *ImportController) matchTrack(tracks []*models.Track, music parser.MusicDetails, title string) *models.Track {
	if music.TrackNumber != nil {
		for _, t := range tracks {
			if t.Number != *music.TrackNumber {
				continue
			}
			if music.DiscNumber == nil || t.Disc == *music.DiscNumber || (t.Disc <= 1 && *music.DiscNumber <= 1) {
				return t
			}
		}
		return nil
	}

	name := music.TrackTitle
	if name == "" {
		name = title
	}
	for _, t := range tracks {
		if utils.TitlesMatch(name, t.Title, c.threshold) {
			return t
		}
	}
	return nil
}

func (c *ImportController) importBook(ctx context.Context, d *models.Download, files []string, result *ImportResult) error {
	book, err := c.db.GetBook(d.EntityID)
	if err != nil {
		return fmt.Errorf("failed to get book %d: %w", d.EntityID, err)
	}
	author, err := c.db.GetAuthor(book.AuthorID)
	if err != nil {
		return fmt.Errorf("failed to get author: %w", err)
	}

	imported := false
	for _, file := range files {
		parsed := parseFile(d, file)
		details, _ := parsed.Book()

		matched := utils.TitlesMatch(parsed.Title, book.Title, c.threshold)
		if details.ISBN != "" && book.ISBN != "" {
			matched = details.ISBN == book.ISBN
		}
		if !matched {
			result.Failed = append(result.Failed, FailedFile{Source: file, Reason: "file does not match " + book.Title})
			continue
		}
		if imported {
			result.Skipped = append(result.Skipped, file)
			continue
		}

		values := naming.Values{
			AuthorName:   author.Name,
			BookTitle:    book.Title,
			Year:         book.Year,
			Quality:      fileQuality(d, parsed),
			ReleaseGroup: releaseGroup(d, parsed),
		}
		before := len(result.Imported)
		c.place(ctx, d, file, values, []leaf{{id: book.ID, file: &book.LibraryFile, entity: book}}, fileQuality(d, parsed), result)
		imported = len(result.Imported) > before
	}
	return nil
}

// destination renders the library path of a file
func (c *ImportController) destination(mt models.MediaType, values naming.Values, source string) (string, error) {
	media := c.media.For(mt)
	rel, err := naming.Render(mt, media.Template, values)
	if err != nil {
		return "", err
	}
	return naming.SafeJoin(media.Root, rel+strings.ToLower(filepath.Ext(source)))
}

// place moves a file into the library and updates the entities it holds.
// Files previously held by those entities are deleted.
func (c *ImportController) place(ctx context.Context, d *models.Download, source string, values naming.Values, leaves []leaf, qualityName string, result *ImportResult) {
	dest, err := c.destination(d.MediaType, values, source)
	if err != nil {
		result.Failed = append(result.Failed, FailedFile{Source: source, Reason: err.Error()})
		return
	}

	if err := moveFile(source, dest); err != nil {
		result.Failed = append(result.Failed, FailedFile{Source: source, Reason: err.Error()})
		return
	}

	imported := ImportedFile{Source: source, Destination: dest}
	replaced := make(map[string]bool)
	err = c.db.Transaction(func(tx *models.Database) error {
		for _, l := range leaves {
			if l.file.HasFile && l.file.FilePath != "" && l.file.FilePath != dest {
				replaced[l.file.FilePath] = true
			}
			l.file.HasFile = true
			l.file.FilePath = dest
			l.file.QualityName = qualityName
			if err := tx.Save(l.entity); err != nil {
				return fmt.Errorf("failed to update library item %d: %w", l.id, err)
			}
			imported.EntityIDs = append(imported.EntityIDs, l.id)
		}
		return nil
	})
	if err != nil {
		// Put the file back so a later import can retry it
		if restoreErr := moveFile(dest, source); restoreErr != nil {
			c.logger.WithError(restoreErr).WithFields(logrus.Fields{
				"source":      source,
				"destination": dest,
			}).Error("Failed to restore file after library update failed")
		}
		result.Failed = append(result.Failed, FailedFile{Source: source, Reason: err.Error()})
		return
	}

	for old := range replaced {
		if refs, err := c.db.CountFileReferences(old); err != nil || refs > 0 {
			continue
		}
		if err := os.Remove(old); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.WithError(err).WithField("path", old).Warn("Failed to delete replaced file")
			continue
		}
		imported.Replaced = append(imported.Replaced, old)
		c.history.record(ctx, models.EventUpgrade, d, "replaced "+old)
	}
	sort.Strings(imported.Replaced)
	result.Imported = append(result.Imported, imported)

	c.logger.WithFields(logrus.Fields{
		"source":      source,
		"destination": dest,
		"replaced":    len(imported.Replaced),
	}).Info("File imported")
}

// moveFile renames src to dst, copying when they sit on different devices
func moveFile(src, dst string) error {
	if src == dst {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("failed to move file: %w", err)
	}

	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove source after copy: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	tmp := dst + ".partial"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close destination: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize copy: %w", err)
	}
	return nil
}
