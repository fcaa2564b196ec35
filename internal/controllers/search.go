package controllers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/metrics"
	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/quality"
	"github.com/amaumene/grabarr/internal/services/newznab"
	"github.com/amaumene/grabarr/internal/telemetry"
	"github.com/amaumene/grabarr/internal/utils"
)

// ErrAllIndexersFailed is returned when no indexer answered a search
var ErrAllIndexersFailed = errors.New("all indexers failed")

// Indexer is a searchable release source
type Indexer interface {
	Name() string
	CategoriesFor(mt models.MediaType) []int
	Search(ctx context.Context, req newznab.SearchRequest) ([]models.Candidate, error)
}

// SearchController handles search operations
type SearchController struct {
	indexers  []Indexer
	blacklist *BlacklistController
	terms     *utils.IgnoredTerms
	formats   []quality.CustomFormat
	threshold float64
	cache     *cache.Cache
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

// NewSearchController creates a new search controller
func NewSearchController(cfg *config.Config, indexers []Indexer, blacklist *BlacklistController, terms *utils.IgnoredTerms, m *metrics.Metrics, logger *logrus.Logger) *SearchController {
	c := &SearchController{
		indexers:  indexers,
		blacklist: blacklist,
		terms:     terms,
		formats:   cfg.CustomFormats,
		threshold: cfg.Search.SimilarityThreshold,
		metrics:   m,
		logger:    logger,
	}
	if cfg.Search.CacheTTL > 0 {
		c.cache = cache.New(cfg.Search.CacheTTL, 2*cfg.Search.CacheTTL)
	}
	return c
}

// Search queries every indexer concurrently and returns the merged
// candidates minus duplicates, blacklisted releases and ignored terms.
// A failing indexer is skipped; the search fails only when all of them do.
func (c *SearchController) Search(ctx context.Context, mt models.MediaType, req newznab.SearchRequest) ([]models.Candidate, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "search")
	defer span.End()
	span.SetAttributes(
		attribute.String("media_type", string(mt)),
		attribute.String("query", req.Query),
	)

	if len(c.indexers) == 0 {
		return nil, nil
	}

	results := make([][]models.Candidate, len(c.indexers))
	errs := make([]error, len(c.indexers))

	var g errgroup.Group
	for i, idx := range c.indexers {
		i, idx := i, idx
		g.Go(func() error {
			results[i], errs[i] = c.searchIndexer(ctx, idx, mt, req)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	var merged []models.Candidate
	for i, err := range errs {
		if err != nil {
			failed++
			c.metrics.IndexerErrors.WithLabelValues(c.indexers[i].Name()).Inc()
			c.logger.WithError(err).WithField("indexer", c.indexers[i].Name()).Warn("Indexer search failed")
			continue
		}
		merged = append(merged, results[i]...)
	}
	if failed == len(c.indexers) {
		span.SetStatus(codes.Error, ErrAllIndexersFailed.Error())
		return nil, fmt.Errorf("search %q: %w", req.Query, ErrAllIndexersFailed)
	}

	candidates, err := c.filter(merged)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	c.logger.WithFields(logrus.Fields{
		"query":      req.Query,
		"media_type": mt,
		"received":   len(merged),
		"candidates": len(candidates),
	}).Info("Search completed")
	return candidates, nil
}

func (c *SearchController) searchIndexer(ctx context.Context, idx Indexer, mt models.MediaType, req newznab.SearchRequest) ([]models.Candidate, error) {
	req.Categories = idx.CategoriesFor(mt)
	key := cacheKey(idx.Name(), req)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			c.logger.WithField("indexer", idx.Name()).Debug("Search served from cache")
			return cached.([]models.Candidate), nil
		}
	}

	start := time.Now()
	candidates, err := idx.Search(ctx, req)
	c.metrics.SearchDuration.WithLabelValues(idx.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.SetDefault(key, candidates)
	}
	return candidates, nil
}

func (c *SearchController) filter(merged []models.Candidate) ([]models.Candidate, error) {
	blacklisted, err := c.blacklist.Active()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(merged))
	candidates := make([]models.Candidate, 0, len(merged))
	for _, cand := range merged {
		key := cand.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		c.metrics.CandidatesSeen.Inc()

		if entry, ok := blacklisted[key]; ok {
			c.metrics.BlacklistHits.Inc()
			c.logger.WithFields(logrus.Fields{
				"title":  cand.Title,
				"reason": entry.Reason,
			}).Debug("Skipping blacklisted release")
			continue
		}
		if c.terms != nil {
			if ignored, term := c.terms.Match(cand.Title); ignored {
				c.logger.WithFields(logrus.Fields{
					"title": cand.Title,
					"term":  term,
				}).Debug("Skipping release with ignored term")
				continue
			}
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// RankAndSelect scores candidates against the target profile and keeps, best
// first, those that refer to the target and improve on its current file
func (c *SearchController) RankAndSelect(candidates []models.Candidate, target Target) []quality.ScoredRelease {
	ranked := quality.ScoreAndRankReleases(candidates, target.MediaType, target.Profile, c.formats)

	selected := make([]quality.ScoredRelease, 0, len(ranked))
	for _, scored := range ranked {
		if !c.matchesTarget(scored, target) {
			c.logger.WithFields(logrus.Fields{
				"title":  scored.Candidate.Title,
				"target": target.String(),
			}).Debug("Skipping release for another item")
			continue
		}
		if target.HasFile && !quality.IsScoredUpgrade(target.CurrentQuality, scored, target.Profile) {
			continue
		}
		selected = append(selected, scored)
	}
	return selected
}

// SearchTarget searches for a target and returns the acceptable releases, best first
func (c *SearchController) SearchTarget(ctx context.Context, target Target) ([]quality.ScoredRelease, error) {
	candidates, err := c.Search(ctx, target.MediaType, target.Request())
	if err != nil {
		return nil, err
	}
	return c.RankAndSelect(candidates, target), nil
}

func (c *SearchController) matchesTarget(scored quality.ScoredRelease, target Target) bool {
	parsed := scored.Parsed

	switch target.MediaType {
	case models.MediaTypeTV:
		if !utils.TitlesMatch(parsed.Title, target.Title, c.threshold) {
			return false
		}
		tv, _ := parsed.TV()
		if tv.SeasonNumber == nil || *tv.SeasonNumber != target.Season {
			return false
		}
		if target.Type == StrategySeasonPack {
			return tv.IsSeasonPack
		}
		if tv.IsSeasonPack {
			return true
		}
		if tv.EpisodeNumber == nil {
			return false
		}
		end := *tv.EpisodeNumber
		if tv.EndEpisodeNumber != nil {
			end = *tv.EndEpisodeNumber
		}
		return target.Episode >= *tv.EpisodeNumber && target.Episode <= end

	case models.MediaTypeMovie:
		if !utils.TitlesMatch(parsed.Title, target.Title, c.threshold) {
			return false
		}
		return parsed.Year == nil || target.Year == 0 || *parsed.Year == target.Year

	case models.MediaTypeMusic:
		music, _ := parsed.Music()
		if music.TrackNumber != nil {
			return false
		}
		if music.Artist != "" && !utils.TitlesMatch(music.Artist, target.Creator, c.threshold) {
			return false
		}
		return utils.TitlesMatch(music.Album, target.Title, c.threshold)

	case models.MediaTypeBook:
		book, _ := parsed.Book()
		if book.ISBN != "" && target.ISBN != "" {
			return book.ISBN == target.ISBN
		}
		if book.Author != "" && !utils.TitlesMatch(book.Author, target.Creator, c.threshold) {
			return false
		}
		return utils.TitlesMatch(parsed.Title, target.Title, c.threshold)
	}
	return false
}

func cacheKey(indexer string, req newznab.SearchRequest) string {
	parts := []string{indexer, req.Type, req.Query, req.Artist, req.Album, req.Author, req.Title}
	if req.Season != nil {
		parts = append(parts, "s"+strconv.Itoa(*req.Season))
	}
	if req.Episode != nil {
		parts = append(parts, "e"+strconv.Itoa(*req.Episode))
	}
	for _, cat := range req.Categories {
		parts = append(parts, strconv.Itoa(cat))
	}
	return strings.Join(parts, "|")
}
