package controllers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/grabarr/internal/models"
)

func TestBlacklistRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	bl := env.blacklist

	blacklistedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	bl.now = func() time.Time { return blacklistedAt }
	require.NoError(t, bl.Add("guid-1", "geek", "Show.S01E01", models.FailureTypeImport, "bad archive"))

	bl.now = func() time.Time { return blacklistedAt.Add(7*24*time.Hour - time.Second) }
	excluded, err := bl.IsBlacklisted("guid-1", "geek")
	require.NoError(t, err)
	assert.True(t, excluded)

	active, err := bl.Active()
	require.NoError(t, err)
	assert.Contains(t, active, models.Candidate{GUID: "guid-1", Indexer: "geek"}.Key())

	bl.now = func() time.Time { return blacklistedAt.Add(7 * 24 * time.Hour) }
	excluded, err = bl.IsBlacklisted("guid-1", "geek")
	require.NoError(t, err)
	assert.False(t, excluded)

	active, err = bl.Active()
	require.NoError(t, err)
	assert.Empty(t, active)

	removed, err := bl.Prune()
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestBlacklistUnknownRelease(t *testing.T) {
	env := newTestEnv(t)
	excluded, err := env.blacklist.IsBlacklisted("nope", "geek")
	require.NoError(t, err)
	assert.False(t, excluded)
}

func TestRecordFailureThreshold(t *testing.T) {
	env := newTestEnv(t)
	bl := env.blacklist

	failed := func() *models.Download {
		d := &models.Download{Title: "Movie.2024.1080p.BluRay", GUID: "g", Indexer: "geek", Status: models.DownloadStatusFailed}
		require.NoError(t, env.db.CreateDownload(d))
		return d
	}

	require.NoError(t, bl.RecordFailure(failed(), models.FailureTypeDownload, "par2 failed"))
	excluded, err := bl.IsBlacklisted("g", "geek")
	require.NoError(t, err)
	assert.False(t, excluded, "one failure stays below the threshold")

	require.NoError(t, bl.RecordFailure(failed(), models.FailureTypeDownload, "par2 failed"))
	excluded, err = bl.IsBlacklisted("g", "geek")
	require.NoError(t, err)
	assert.True(t, excluded)
}

func TestRecordImportFailureBlacklistsImmediately(t *testing.T) {
	env := newTestEnv(t)
	d := &models.Download{Title: "Movie.2024.1080p.BluRay", GUID: "g", Indexer: "geek", Status: models.DownloadStatusFailed}
	require.NoError(t, env.db.CreateDownload(d))

	require.NoError(t, env.blacklist.RecordFailure(d, models.FailureTypeImport, "no media files"))

	entry, err := env.db.GetBlacklistEntry("g", "geek")
	require.NoError(t, err)
	assert.Equal(t, models.FailureTypeImport, entry.FailureType)
	assert.Equal(t, "no media files", entry.Reason)
}
