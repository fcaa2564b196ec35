package controllers

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/naming"
)

// importingDownload creates a download ready for import
func importingDownload(t *testing.T, db *models.Database, mt models.MediaType, entityID uint, title, qualityName, output string) *models.Download {
	t.Helper()
	d := &models.Download{
		Title:      title,
		GUID:       "guid-" + title,
		Indexer:    "geek",
		Quality:    qualityName,
		MediaType:  mt,
		EntityID:   entityID,
		Client:     "sab",
		Status:     models.DownloadStatusImporting,
		OutputPath: output,
	}
	require.NoError(t, db.CreateDownload(d))
	return d
}

func TestImportSeasonPack(t *testing.T) {
	env := newTestEnv(t)
	_, _, episodes := seedSeries(t, env.db, "Breaking Bad", 1, 1, 2, 3, 4)

	release := "Breaking.Bad.S01.720p.BluRay.x264-GRP"
	output := filepath.Join(t.TempDir(), release)
	for n := 1; n <= 5; n++ {
		writeFile(t, filepath.Join(output, fmt.Sprintf("Breaking.Bad.S01E%02d.720p.BluRay.x264-GRP.mkv", n)), 1024)
	}
	writeFile(t, filepath.Join(output, "Breaking.Bad.S01E01.sample.mkv"), 64)
	writeFile(t, filepath.Join(output, "Sample", "Breaking.Bad.S01E02.mkv"), 64)

	d := importingDownload(t, env.db, models.MediaTypeTV, episodes[0].ID, release, "720P BLURAY", output)
	result, err := env.importer.ImportDownload(context.Background(), d)
	require.NoError(t, err)

	assert.Len(t, result.Imported, 4)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Source, "S01E05")

	ep, err := env.db.GetEpisode(episodes[0].ID)
	require.NoError(t, err)
	want := filepath.Join(env.cfg.Media.TV.Root, "Breaking Bad", "Season 01", "Breaking Bad - S01E01 - Episode 1 [720P BLURAY].mkv")
	assert.True(t, ep.HasFile)
	assert.Equal(t, want, ep.FilePath)
	assert.Equal(t, "720P BLURAY", ep.QualityName)
	assert.FileExists(t, want)

	d, err = env.db.GetDownloadByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusCompleted, d.Status)
	assert.True(t, d.Imported)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Imports.WithLabelValues("tv", "partial")))
	assert.Equal(t, []models.EventType{models.EventImportCompleted}, env.publisher.types())
}

func TestImportMultiEpisodeFile(t *testing.T) {
	env := newTestEnv(t)
	_, _, episodes := seedSeries(t, env.db, "Breaking Bad", 1, 1, 2)

	output := filepath.Join(t.TempDir(), "Breaking.Bad.S01E01E02.720p.HDTV.x264-GRP.mkv")
	writeFile(t, output, 1024)

	d := importingDownload(t, env.db, models.MediaTypeTV, episodes[0].ID, "Breaking.Bad.S01E01E02.720p.HDTV.x264-GRP", "720P HDTV", output)
	result, err := env.importer.ImportDownload(context.Background(), d)
	require.NoError(t, err)
	require.Len(t, result.Imported, 1)
	assert.ElementsMatch(t, []uint{episodes[0].ID, episodes[1].ID}, result.Imported[0].EntityIDs)

	first, err := env.db.GetEpisode(episodes[0].ID)
	require.NoError(t, err)
	second, err := env.db.GetEpisode(episodes[1].ID)
	require.NoError(t, err)
	assert.Equal(t, first.FilePath, second.FilePath)
}

func TestImportNothingMatched(t *testing.T) {
	env := newTestEnv(t)
	movie := seedMovie(t, env.db)

	output := filepath.Join(t.TempDir(), "The.Matrix.1999.1080p.BluRay.x264-A")
	writeFile(t, filepath.Join(output, "release.nfo"), 10)

	d := importingDownload(t, env.db, models.MediaTypeMovie, movie.ID, "The.Matrix.1999.1080p.BluRay.x264-A", "1080P BLURAY", output)
	_, err := env.importer.ImportDownload(context.Background(), d)
	assert.ErrorIs(t, err, ErrNothingImported)

	d, err = env.db.GetDownloadByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusFailed, d.Status)
	assert.False(t, d.Imported)

	excluded, err := env.blacklist.IsBlacklisted(d.GUID, d.Indexer)
	require.NoError(t, err)
	assert.True(t, excluded)
	assert.Equal(t, []models.EventType{models.EventImportFailed}, env.publisher.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Imports.WithLabelValues("movie", "failed")))
}

func TestImportTVUnknownEpisodeFails(t *testing.T) {
	env := newTestEnv(t)
	_, _, episodes := seedSeries(t, env.db, "Breaking Bad", 1, 1)

	output := filepath.Join(t.TempDir(), "Breaking.Bad.S02E07.720p.HDTV.x264-GRP.mkv")
	writeFile(t, output, 1024)

	d := importingDownload(t, env.db, models.MediaTypeTV, episodes[0].ID, "Breaking.Bad.S02E07.720p.HDTV.x264-GRP", "720P HDTV", output)
	result, err := env.importer.ImportDownload(context.Background(), d)
	assert.ErrorIs(t, err, ErrNothingImported)
	assert.Empty(t, result.Imported)
	assert.Len(t, result.Failed, 1)
	assert.FileExists(t, output)
}

func TestImportUpgradeReplacesFile(t *testing.T) {
	env := newTestEnv(t)
	old := filepath.Join(env.cfg.Media.Movie.Root, "The Matrix (1999)", "The Matrix (1999) [720P HDTV].mkv")
	writeFile(t, old, 512)

	movie := &models.Movie{Title: "The Matrix", Year: 1999, LibraryFile: models.LibraryFile{
		Requested: true, HasFile: true, FilePath: old, QualityName: "720P HDTV",
	}}
	require.NoError(t, env.db.Create(movie))

	output := filepath.Join(t.TempDir(), "The.Matrix.1999.1080p.BluRay.x264-A")
	writeFile(t, filepath.Join(output, "The.Matrix.1999.1080p.BluRay.x264-A.mkv"), 4096)
	writeFile(t, filepath.Join(output, "extras.mkv"), 128)

	d := importingDownload(t, env.db, models.MediaTypeMovie, movie.ID, "The.Matrix.1999.1080p.BluRay.x264-A", "1080P BLURAY", output)
	d.IsUpgrade = true
	result, err := env.importer.ImportDownload(context.Background(), d)
	require.NoError(t, err)

	require.Len(t, result.Imported, 1)
	assert.Equal(t, []string{old}, result.Imported[0].Replaced)
	assert.Len(t, result.Skipped, 1)
	assert.NoFileExists(t, old)

	movie, err = env.db.GetMovie(movie.ID)
	require.NoError(t, err)
	assert.Equal(t, "1080P BLURAY", movie.QualityName)
	assert.FileExists(t, movie.FilePath)
	assert.Equal(t, []models.EventType{models.EventUpgrade, models.EventImportCompleted}, env.publisher.types())
}

func TestImportKeepsSharedFile(t *testing.T) {
	env := newTestEnv(t)
	_, _, episodes := seedSeries(t, env.db, "Breaking Bad", 1, 1, 2)

	shared := filepath.Join(env.cfg.Media.TV.Root, "Breaking Bad", "Season 01", "Breaking Bad - S01E01E02.mkv")
	writeFile(t, shared, 512)
	for _, ep := range episodes {
		ep.HasFile = true
		ep.FilePath = shared
		ep.QualityName = "720P HDTV"
		require.NoError(t, env.db.Save(ep))
	}

	output := filepath.Join(t.TempDir(), "Breaking.Bad.S01E01.1080p.BluRay.x264-GRP.mkv")
	writeFile(t, output, 1024)

	d := importingDownload(t, env.db, models.MediaTypeTV, episodes[0].ID, "Breaking.Bad.S01E01.1080p.BluRay.x264-GRP", "1080P BLURAY", output)
	result, err := env.importer.ImportDownload(context.Background(), d)
	require.NoError(t, err)
	require.Len(t, result.Imported, 1)
	assert.Empty(t, result.Imported[0].Replaced)
	assert.FileExists(t, shared, "episode 2 still uses the file")
}

func TestImportAlbum(t *testing.T) {
	env := newTestEnv(t)
	artist := &models.Artist{Name: "Pink Floyd"}
	require.NoError(t, env.db.Create(artist))
	album := &models.Album{ArtistID: artist.ID, Title: "The Dark Side of the Moon", Year: 1973}
	require.NoError(t, env.db.Create(album))
	speak := &models.Track{AlbumID: album.ID, ArtistID: artist.ID, Number: 1, Title: "Speak to Me", LibraryFile: models.LibraryFile{Requested: true}}
	breathe := &models.Track{AlbumID: album.ID, ArtistID: artist.ID, Number: 2, Title: "Breathe", LibraryFile: models.LibraryFile{Requested: true}}
	require.NoError(t, env.db.Create(speak))
	require.NoError(t, env.db.Create(breathe))

	release := "Pink Floyd - The Dark Side of the Moon (1973) [FLAC]"
	output := filepath.Join(t.TempDir(), release)
	writeFile(t, filepath.Join(output, "01 - Speak to Me.flac"), 256)
	writeFile(t, filepath.Join(output, "02 - Breathe.flac"), 256)
	writeFile(t, filepath.Join(output, "cover.jpg"), 16)

	d := importingDownload(t, env.db, models.MediaTypeMusic, album.ID, release, "FLAC", output)
	result, err := env.importer.ImportDownload(context.Background(), d)
	require.NoError(t, err)
	assert.Len(t, result.Imported, 2)
	assert.Empty(t, result.Failed)

	track, err := env.db.GetTrack(speak.ID)
	require.NoError(t, err)
	want := filepath.Join(env.cfg.Media.Music.Root, "Pink Floyd", "The Dark Side of the Moon (1973)", "01 - Speak to Me.flac")
	assert.Equal(t, want, track.FilePath)
	assert.Equal(t, "FLAC", track.QualityName)
	assert.FileExists(t, want)
}

func TestImportBookByISBN(t *testing.T) {
	env := newTestEnv(t)
	author := &models.Author{Name: "Brandon Sanderson"}
	require.NoError(t, env.db.Create(author))
	book := &models.Book{AuthorID: author.ID, Title: "Mistborn", ISBN: "9780765311788", Year: 2006, LibraryFile: models.LibraryFile{Requested: true}}
	require.NoError(t, env.db.Create(book))

	release := "Brandon Sanderson - Mistborn (2006) ISBN 9780765311788.epub"
	output := filepath.Join(t.TempDir(), release)
	writeFile(t, output, 128)

	d := importingDownload(t, env.db, models.MediaTypeBook, book.ID, release, "EPUB", output)
	result, err := env.importer.ImportDownload(context.Background(), d)
	require.NoError(t, err)
	require.Len(t, result.Imported, 1)

	book, err = env.db.GetBook(book.ID)
	require.NoError(t, err)
	want := filepath.Join(env.cfg.Media.Book.Root, "Brandon Sanderson", "Mistborn (2006)", "Mistborn.epub")
	assert.Equal(t, want, book.FilePath)
	assert.FileExists(t, want)
}

// unmigrated has no table, so saving it fails
type unmigrated struct {
	ID   uint
	Name string
}

func TestPlaceRestoresFileWhenLibraryUpdateFails(t *testing.T) {
	env := newTestEnv(t)
	movie := seedMovie(t, env.db)

	output := t.TempDir()
	source := filepath.Join(output, "The.Matrix.1999.1080p.BluRay.x264-GRP.mkv")
	writeFile(t, source, 64)
	d := importingDownload(t, env.db, models.MediaTypeMovie, movie.ID, "The.Matrix.1999.1080p.BluRay.x264-GRP", "1080P BLURAY", output)

	file := models.LibraryFile{Requested: true}
	leaves := []leaf{{id: movie.ID, file: &file, entity: &unmigrated{Name: "broken"}}}
	values := naming.Values{MovieTitle: movie.Title, Year: movie.Year, Quality: "1080P BLURAY"}

	result := &ImportResult{}
	env.importer.place(context.Background(), d, source, values, leaves, "1080P BLURAY", result)

	assert.Empty(t, result.Imported)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, source, result.Failed[0].Source)

	assert.FileExists(t, source)
	assert.NoFileExists(t, filepath.Join(env.cfg.Media.Movie.Root, "The Matrix (1999)", "The Matrix (1999) [1080P BLURAY].mkv"))

	got, err := env.db.GetMovie(movie.ID)
	require.NoError(t, err)
	assert.False(t, got.HasFile)
}
