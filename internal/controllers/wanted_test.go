package controllers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/grabarr/internal/models"
)

func TestSearchWanted(t *testing.T) {
	env := newTestEnv(t)
	sab := newFakeClient("sab")
	_, _, episodes := seedSeries(t, env.db, "Breaking Bad", 1, 1, 2)
	heat := &models.Movie{Title: "Heat", Year: 1995, LibraryFile: models.LibraryFile{Requested: true}}
	require.NoError(t, env.db.Create(heat))

	geek := &fakeIndexer{name: "geek", candidates: []models.Candidate{
		candidate("geek", "Breaking.Bad.S01.720p.BluRay.x264-GRP", 4000),
		candidate("geek", "Breaking.Bad.S01.1080p.WEB-DL.x264-GRP", 8000),
		candidate("geek", "Heat.1995.1080p.BluRay.x264-A", 9000),
	}}
	wanted := NewWantedController(env.strategy(), env.search(geek), env.downloads(sab), env.logger)

	grabbed, err := wanted.SearchWanted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, grabbed)

	require.Len(t, sab.added, 2)
	assert.Equal(t, "Breaking.Bad.S01.1080p.WEB-DL.x264-GRP", sab.added[0].Title)
	assert.Equal(t, "Heat.1995.1080p.BluRay.x264-A", sab.added[1].Title)

	pack, err := env.db.GetDownloadByTitle("Breaking.Bad.S01.1080p.WEB-DL.x264-GRP")
	require.NoError(t, err)
	assert.Equal(t, episodes[0].ID, pack.EntityID)

	// Everything is downloading now
	grabbed, err = wanted.SearchWanted(context.Background())
	require.NoError(t, err)
	assert.Zero(t, grabbed)
	assert.Len(t, sab.added, 2)
}

func TestSearchWantedSkipsFailingTargets(t *testing.T) {
	env := newTestEnv(t)
	sab := newFakeClient("sab")
	require.NoError(t, env.db.Create(&models.Movie{Title: "Heat", Year: 1995, LibraryFile: models.LibraryFile{Requested: true}}))
	require.NoError(t, env.db.Create(&models.Movie{Title: "Alien", Year: 1979, LibraryFile: models.LibraryFile{Requested: true}}))

	broken := &fakeIndexer{name: "geek", err: errors.New("503")}
	wanted := NewWantedController(env.strategy(), env.search(broken), env.downloads(sab), env.logger)

	grabbed, err := wanted.SearchWanted(context.Background())
	require.NoError(t, err)
	assert.Zero(t, grabbed)
	assert.Equal(t, 2, broken.calls())
}

func TestSearchWantedStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&models.Movie{Title: "Heat", Year: 1995, LibraryFile: models.LibraryFile{Requested: true}}))

	geek := &fakeIndexer{name: "geek"}
	wanted := NewWantedController(env.strategy(), env.search(geek), env.downloads(newFakeClient("sab")), env.logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := wanted.SearchWanted(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, geek.calls())
}
