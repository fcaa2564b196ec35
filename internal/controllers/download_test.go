package controllers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/quality"
	"github.com/amaumene/grabarr/internal/services/downloadclient"
)

func scoredRelease(title, qualityName string) quality.ScoredRelease {
	return quality.ScoredRelease{
		Allowed:     true,
		QualityName: qualityName,
		Candidate:   candidate("geek", title, 1024),
	}
}

func movieTarget(movie *models.Movie) Target {
	return Target{
		Type:           StrategySingleMovie,
		MediaType:      models.MediaTypeMovie,
		EntityID:       movie.ID,
		Title:          movie.Title,
		Year:           movie.Year,
		HasFile:        movie.HasFile,
		CurrentQuality: movie.QualityName,
	}
}

func seedMovie(t *testing.T, db *models.Database) *models.Movie {
	t.Helper()
	movie := &models.Movie{Title: "The Matrix", Year: 1999, LibraryFile: models.LibraryFile{Requested: true}}
	require.NoError(t, db.Create(movie))
	return movie
}

func TestGrab(t *testing.T) {
	env := newTestEnv(t)
	sab := newFakeClient("sab")
	downloads := env.downloads(sab)
	movie := seedMovie(t, env.db)

	d, err := downloads.Grab(context.Background(), scoredRelease("The.Matrix.1999.1080p.BluRay.x264-A", "1080P BLURAY"), movieTarget(movie))
	require.NoError(t, err)

	assert.Equal(t, models.DownloadStatusQueued, d.Status)
	assert.Equal(t, "sab", d.Client)
	assert.Equal(t, "sab-1", d.ClientJobID)
	assert.Equal(t, movie.ID, d.EntityID)
	assert.Equal(t, "1080P BLURAY", d.Quality)
	assert.False(t, d.IsUpgrade)

	require.Len(t, sab.added, 1)
	assert.Equal(t, "The.Matrix.1999.1080p.BluRay.x264-A", sab.added[0].Title)
	assert.Equal(t, []models.EventType{models.EventGrab}, env.publisher.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Grabs.WithLabelValues("sab", "movie")))

	queue, err := downloads.Queue()
	require.NoError(t, err)
	assert.Len(t, queue, 1)
}

func TestGrabUpgrade(t *testing.T) {
	env := newTestEnv(t)
	downloads := env.downloads(newFakeClient("sab"))
	movie := seedMovie(t, env.db)
	movie.HasFile = true
	movie.QualityName = "720P HDTV"

	d, err := downloads.Grab(context.Background(), scoredRelease("The.Matrix.1999.1080p.BluRay.x264-A", "1080P BLURAY"), movieTarget(movie))
	require.NoError(t, err)
	assert.True(t, d.IsUpgrade)
	assert.Equal(t, []models.EventType{models.EventUpgrade}, env.publisher.types())
}

func TestGrabWithoutClient(t *testing.T) {
	env := newTestEnv(t)
	downloads := env.downloads()

	_, err := downloads.Grab(context.Background(), scoredRelease("The.Matrix.1999.1080p.BluRay.x264-A", "1080P BLURAY"), Target{MediaType: models.MediaTypeMovie})
	assert.ErrorIs(t, err, ErrNoClient)
}

func TestGrabRejectedByClient(t *testing.T) {
	env := newTestEnv(t)
	sab := newFakeClient("sab")
	sab.addErr = errors.New("nzb rejected")
	downloads := env.downloads(sab)
	movie := seedMovie(t, env.db)
	release := scoredRelease("The.Matrix.1999.1080p.BluRay.x264-A", "1080P BLURAY")

	d, err := downloads.Grab(context.Background(), release, movieTarget(movie))
	require.Error(t, err)
	require.NotNil(t, d)
	assert.Equal(t, models.DownloadStatusFailed, d.Status)
	assert.Contains(t, d.Error, "nzb rejected")

	excluded, err := env.blacklist.IsBlacklisted(release.Candidate.GUID, release.Candidate.Indexer)
	require.NoError(t, err)
	assert.False(t, excluded)

	_, err = downloads.Grab(context.Background(), release, movieTarget(movie))
	require.Error(t, err)

	excluded, err = env.blacklist.IsBlacklisted(release.Candidate.GUID, release.Candidate.Indexer)
	require.NoError(t, err)
	assert.True(t, excluded)
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.GrabFailures.WithLabelValues("sab")))
	assert.Equal(t, []models.EventType{models.EventDownloadFailed, models.EventDownloadFailed}, env.publisher.types())
}

func TestRefreshQueueTransitions(t *testing.T) {
	env := newTestEnv(t)
	sab := newFakeClient("sab")
	downloads := env.downloads(sab)
	movie := seedMovie(t, env.db)
	ctx := context.Background()

	d, err := downloads.Grab(ctx, scoredRelease("The.Matrix.1999.1080p.BluRay.x264-A", "1080P BLURAY"), movieTarget(movie))
	require.NoError(t, err)

	sab.setItems(downloadclient.Item{ID: "sab-1", Status: models.DownloadStatusDownloading, Progress: 40})
	require.NoError(t, downloads.RefreshQueue(ctx))
	d, err = env.db.GetDownloadByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusDownloading, d.Status)
	assert.Equal(t, 40.0, d.Progress)

	sab.setItems(downloadclient.Item{ID: "sab-1", Status: models.DownloadStatusPaused, Progress: 40})
	require.NoError(t, downloads.RefreshQueue(ctx))
	d, err = env.db.GetDownloadByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusPaused, d.Status)

	sab.setItems(downloadclient.Item{ID: "sab-1", Status: models.DownloadStatusFailed, RawStatus: "Failed", Error: "par2 repair failed"})
	require.NoError(t, downloads.RefreshQueue(ctx))
	d, err = env.db.GetDownloadByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusFailed, d.Status)
	assert.Equal(t, "par2 repair failed", d.Error)

	// Failed is final
	sab.setItems(downloadclient.Item{ID: "sab-1", Status: models.DownloadStatusDownloading, Progress: 80})
	require.NoError(t, downloads.RefreshQueue(ctx))
	d, err = env.db.GetDownloadByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusFailed, d.Status)

	assert.Equal(t, []models.EventType{models.EventGrab, models.EventDownloadFailed}, env.publisher.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.DownloadStates.WithLabelValues("failed")))
}

func TestRefreshQueueImportsCompletedDownload(t *testing.T) {
	env := newTestEnv(t)
	sab := newFakeClient("sab")
	downloads := env.downloads(sab)
	movie := seedMovie(t, env.db)
	ctx := context.Background()

	d, err := downloads.Grab(ctx, scoredRelease("The.Matrix.1999.1080p.BluRay.x264-A", "1080P BLURAY"), movieTarget(movie))
	require.NoError(t, err)

	output := filepath.Join(t.TempDir(), "The.Matrix.1999.1080p.BluRay.x264-A")
	writeFile(t, filepath.Join(output, "The.Matrix.1999.1080p.BluRay.x264-A.mkv"), 4096)
	writeFile(t, filepath.Join(output, "sample.mkv"), 512)
	writeFile(t, filepath.Join(output, "release.nfo"), 10)

	sab.setItems(downloadclient.Item{ID: "sab-1", Status: models.DownloadStatusCompleted, Progress: 100, OutputPath: output})
	require.NoError(t, downloads.RefreshQueue(ctx))

	d, err = env.db.GetDownloadByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusCompleted, d.Status)
	assert.True(t, d.Imported)
	assert.NotNil(t, d.CompletedAt)

	movie, err = env.db.GetMovie(movie.ID)
	require.NoError(t, err)
	want := filepath.Join(env.cfg.Media.Movie.Root, "The Matrix (1999)", "The Matrix (1999) [1080P BLURAY].mkv")
	assert.True(t, movie.HasFile)
	assert.Equal(t, want, movie.FilePath)
	assert.Equal(t, "1080P BLURAY", movie.QualityName)
	assert.FileExists(t, want)

	assert.Equal(t, []models.EventType{models.EventGrab, models.EventDownloadCompleted, models.EventImportCompleted}, env.publisher.types())

	// An imported download is not reprocessed
	require.NoError(t, downloads.RefreshQueue(ctx))
	assert.Len(t, env.publisher.types(), 3)
}

func TestRefreshQueueSkipsFailingClient(t *testing.T) {
	env := newTestEnv(t)
	sab := newFakeClient("sab")
	nzbget := newFakeClient("nzbget")
	nzbget.itemsErr = errors.New("connection refused")
	downloads := env.downloads(sab, nzbget)
	ctx := context.Background()

	onSab := &models.Download{Title: "A", Client: "sab", ClientJobID: "sab-1", Status: models.DownloadStatusQueued}
	onNzbget := &models.Download{Title: "B", Client: "nzbget", ClientJobID: "nzbget-1", Status: models.DownloadStatusQueued}
	require.NoError(t, env.db.CreateDownload(onSab))
	require.NoError(t, env.db.CreateDownload(onNzbget))

	sab.setItems(downloadclient.Item{ID: "sab-1", Status: models.DownloadStatusDownloading, Progress: 10})
	require.NoError(t, downloads.RefreshQueue(ctx))

	got, err := env.db.GetDownloadByID(onSab.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusDownloading, got.Status)

	got, err = env.db.GetDownloadByID(onNzbget.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusQueued, got.Status)
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	sab := newFakeClient("sab")
	downloads := env.downloads(sab)
	movie := seedMovie(t, env.db)
	ctx := context.Background()

	d, err := downloads.Grab(ctx, scoredRelease("The.Matrix.1999.1080p.BluRay.x264-A", "1080P BLURAY"), movieTarget(movie))
	require.NoError(t, err)

	require.NoError(t, downloads.CancelForEntity(ctx, models.MediaTypeMovie, movie.ID, true))
	assert.Equal(t, []string{"sab-1"}, sab.removed)

	_, err = env.db.GetDownloadByID(d.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, []models.EventType{models.EventGrab, models.EventDelete}, env.publisher.types())
}

func TestCheckStuckDownloads(t *testing.T) {
	env := newTestEnv(t)
	sab := newFakeClient("sab")
	downloads := env.downloads(sab)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := &models.Download{Title: "Stale", Client: "sab", ClientJobID: "sab-1", Status: models.DownloadStatusDownloading, ProgressAt: now.Add(-2 * time.Hour)}
	fresh := &models.Download{Title: "Fresh", Client: "sab", ClientJobID: "sab-2", Status: models.DownloadStatusDownloading, ProgressAt: now.Add(-10 * time.Minute)}
	paused := &models.Download{Title: "Paused", Client: "sab", ClientJobID: "sab-3", Status: models.DownloadStatusPaused, ProgressAt: now.Add(-5 * time.Hour)}
	for _, d := range []*models.Download{stale, fresh, paused} {
		require.NoError(t, env.db.CreateDownload(d))
	}

	downloads.now = func() time.Time { return now }
	stuck, err := downloads.CheckStuckDownloads(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, stuck)
	assert.Equal(t, []string{"sab-1"}, sab.removed)

	got, err := env.db.GetDownloadByID(stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusFailed, got.Status)
	assert.Contains(t, got.Error, "no progress")

	for _, id := range []uint{fresh.ID, paused.ID} {
		got, err := env.db.GetDownloadByID(id)
		require.NoError(t, err)
		assert.NotEqual(t, models.DownloadStatusFailed, got.Status)
	}
}

func TestCheckStuckDownloadsRequeuesStaleImports(t *testing.T) {
	env := newTestEnv(t)
	sab := newFakeClient("sab")
	downloads := env.downloads(sab)
	ctx := context.Background()
	now := time.Now().UTC()

	d := &models.Download{Title: "Interrupted", Client: "sab", ClientJobID: "sab-9", Status: models.DownloadStatusImporting, Progress: 100}
	require.NoError(t, env.db.CreateDownload(d))

	// A recent import is left alone
	downloads.now = func() time.Time { return now }
	stuck, err := downloads.CheckStuckDownloads(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, stuck)
	got, err := env.db.GetDownloadByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusImporting, got.Status)

	downloads.now = func() time.Time { return now.Add(2 * time.Hour) }
	stuck, err = downloads.CheckStuckDownloads(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, stuck)
	assert.Empty(t, sab.removed)

	got, err = env.db.GetDownloadByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusCompleted, got.Status)
	assert.False(t, got.Imported)
	assert.Empty(t, got.Error)
}

func TestMoveFileCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in", "file.mkv")
	writeFile(t, src, 16)

	dst := filepath.Join(dir, "library", "Movie (2000)", "Movie (2000).mkv")
	require.NoError(t, moveFile(src, dst))
	assert.FileExists(t, dst)
	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	// Moving onto itself is a no-op
	require.NoError(t, moveFile(dst, dst))
	assert.FileExists(t, dst)
}
