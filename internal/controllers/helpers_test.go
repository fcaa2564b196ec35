package controllers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/events"
	"github.com/amaumene/grabarr/internal/metrics"
	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/naming"
	"github.com/amaumene/grabarr/internal/quality"
	"github.com/amaumene/grabarr/internal/services/downloadclient"
	"github.com/amaumene/grabarr/internal/services/newznab"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]models.EventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

// fakeClient is an in-memory download client
type fakeClient struct {
	mu       sync.Mutex
	name     string
	addErr   error
	itemsErr error
	items    []downloadclient.Item
	added    []downloadclient.AddRequest
	removed  []string
	nextID   int
}

func newFakeClient(name string) *fakeClient {
	return &fakeClient{name: name}
}

func (f *fakeClient) Name() string     { return f.name }
func (f *fakeClient) Protocol() string { return downloadclient.ProtocolUsenet }

func (f *fakeClient) Add(_ context.Context, req downloadclient.AddRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return "", f.addErr
	}
	f.nextID++
	f.added = append(f.added, req)
	return fmt.Sprintf("%s-%d", f.name, f.nextID), nil
}

func (f *fakeClient) Items(context.Context) ([]downloadclient.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items, f.itemsErr
}

func (f *fakeClient) Remove(_ context.Context, id string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeClient) Test(context.Context) error { return nil }

func (f *fakeClient) setItems(items ...downloadclient.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = items
}

// fakeIndexer returns canned candidates
type fakeIndexer struct {
	mu         sync.Mutex
	name       string
	candidates []models.Candidate
	err        error
	requests   []newznab.SearchRequest
}

func (f *fakeIndexer) Name() string { return f.name }

func (f *fakeIndexer) CategoriesFor(mt models.MediaType) []int {
	if mt == models.MediaTypeTV {
		return []int{5030, 5040}
	}
	return nil
}

func (f *fakeIndexer) Search(_ context.Context, req newznab.SearchRequest) ([]models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func (f *fakeIndexer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func candidate(indexer, title string, size int64) models.Candidate {
	return models.Candidate{
		Title:       title,
		DownloadURL: "https://" + indexer + "/get/" + title,
		Size:        size,
		GUID:        "guid-" + title,
		Indexer:     indexer,
		Protocol:    downloadclient.ProtocolUsenet,
		PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// testEnv wires the controllers on an in-memory database
type testEnv struct {
	db        *models.Database
	cfg       *config.Config
	metrics   *metrics.Metrics
	publisher *recordingPublisher
	history   *HistoryController
	blacklist *BlacklistController
	importer  *ImportController
	logger    *logrus.Logger
}

func testConfig(t *testing.T) *config.Config {
	root := t.TempDir()
	media := func(mt models.MediaType) config.MediaConfig {
		return config.MediaConfig{
			Root:     filepath.Join(root, string(mt)),
			Template: naming.DefaultTemplates[mt],
			Profile:  quality.DefaultProfileName(mt),
		}
	}
	return &config.Config{
		Profiles: quality.DefaultProfiles(),
		Media: config.MediaSettings{
			TV:    media(models.MediaTypeTV),
			Movie: media(models.MediaTypeMovie),
			Music: media(models.MediaTypeMusic),
			Book:  media(models.MediaTypeBook),
		},
		Search: config.SearchConfig{
			CacheTTL:            time.Minute,
			SimilarityThreshold: 0.85,
		},
		Download:  config.DownloadConfig{StuckTimeout: 30 * time.Minute},
		Blacklist: config.BlacklistConfig{TTL: 7 * 24 * time.Hour, MaxFailures: 2},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := testLogger()
	db := models.NewTestDatabase(t)
	cfg := testConfig(t)
	m := metrics.New(prometheus.NewRegistry())
	publisher := &recordingPublisher{}
	history := NewHistoryController(db, publisher, logger)
	blacklist := NewBlacklistController(db, cfg.Blacklist, logger)

	return &testEnv{
		db:        db,
		cfg:       cfg,
		metrics:   m,
		publisher: publisher,
		history:   history,
		blacklist: blacklist,
		importer:  NewImportController(db, cfg, blacklist, history, m, logger),
		logger:    logger,
	}
}

func (e *testEnv) downloads(clients ...downloadclient.Client) *DownloadController {
	return NewDownloadController(e.db, clients, e.blacklist, e.history, e.importer, e.metrics, e.logger)
}

func (e *testEnv) search(indexers ...Indexer) *SearchController {
	return NewSearchController(e.cfg, indexers, e.blacklist, nil, e.metrics, e.logger)
}

func (e *testEnv) profile(mt models.MediaType) quality.Profile {
	p, _ := e.cfg.ProfileFor(mt, "")
	return p
}

// seedSeries creates a series with one season holding the given episode numbers
func seedSeries(t *testing.T, db *models.Database, title string, season int, numbers ...int) (*models.Series, *models.Season, []*models.Episode) {
	t.Helper()
	series := &models.Series{Title: title, Year: 2008}
	require.NoError(t, db.Create(series))
	s := &models.Season{SeriesID: series.ID, Number: season}
	require.NoError(t, db.Create(s))

	episodes := make([]*models.Episode, 0, len(numbers))
	for _, n := range numbers {
		ep := &models.Episode{
			SeriesID:    series.ID,
			SeasonID:    s.ID,
			Season:      season,
			Number:      n,
			Title:       fmt.Sprintf("Episode %d", n),
			LibraryFile: models.LibraryFile{Requested: true},
		}
		require.NoError(t, db.Create(ep))
		episodes = append(episodes, ep)
	}
	return series, s, episodes
}

// writeFile creates a file with the given size under dir
func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
}
