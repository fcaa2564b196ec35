package newznab

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/models"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:newznab="http://www.newznab.com/DTD/2010/feeds/attributes/">
  <channel>
    <title>Test Indexer</title>
    <item>
      <title>Test Movie 2024 1080p BluRay x264</title>
      <link>https://example.com/details/12345</link>
      <guid>https://example.com/details/12345</guid>
      <pubDate>Mon, 01 Jan 2024 12:00:00 +0000</pubDate>
      <enclosure url="https://example.com/getnzb/12345" length="8589934592" type="application/x-nzb"/>
      <newznab:attr name="size" value="8589934592"/>
      <newznab:attr name="category" value="2000"/>
    </item>
    <item>
      <title>Test Show S01E01 1080p WEB-DL</title>
      <link>https://example.com/details/12346</link>
      <guid>https://example.com/details/12346</guid>
      <pubDate>Tue, 02 Jan 2024 12:00:00 +0000</pubDate>
      <enclosure url="https://example.com/getnzb/12346" length="100" type="application/x-nzb"/>
      <newznab:attr name="size" value="2147483648"/>
      <newznab:attr name="season" value="1"/>
      <newznab:attr name="episode" value="1"/>
      <newznab:attr name="category" value="5000"/>
    </item>
    <item>
      <title>Test Show S02 1080p WEB-DL Season Pack</title>
      <guid>season-pack</guid>
      <enclosure url="https://example.com/getnzb/12347" length="21474836480" type="application/x-nzb"/>
      <newznab:attr name="season" value="2"/>
    </item>
  </channel>
</rss>`

func TestXMLParsing(t *testing.T) {
	var response NewznabResponse
	require.NoError(t, xml.Unmarshal([]byte(sampleFeed), &response))

	assert.Equal(t, "Test Indexer", response.Channel.Title)
	require.Len(t, response.Channel.Items, 3)

	movieItem := response.Channel.Items[0]
	assert.Equal(t, int64(8589934592), GetAttributeInt64(movieItem, "size"))
	assert.Empty(t, GetAttributeValue(movieItem, "season"))
	assert.Equal(t, "https://example.com/getnzb/12345", movieItem.Enclosure.URL)

	episodeItem := response.Channel.Items[1]
	assert.Equal(t, "1", GetAttributeValue(episodeItem, "season"))
	assert.Equal(t, "1", GetAttributeValue(episodeItem, "episode"))

	assert.Empty(t, GetAttributeValue(response.Channel.Items[2], "episode"))
}

func TestConvertResults(t *testing.T) {
	client := &Client{name: "test"}

	items := []Item{
		{
			Title:     "Movie Title 2024 1080p",
			Link:      "https://example.com/details/movie",
			GUID:      "movie-guid",
			Enclosure: Enclosure{URL: "https://example.com/getnzb/movie"},
			Attributes: []Attribute{
				{Name: "size", Value: "1073741824"},
			},
		},
		{
			Title:     "Show S02 Complete",
			Enclosure: Enclosure{URL: "https://example.com/getnzb/season", Length: 2048},
		},
		{
			Title: "No link at all",
		},
	}

	results := client.convertResults(items)
	require.Len(t, results, 2)

	assert.Equal(t, "https://example.com/getnzb/movie", results[0].DownloadURL)
	assert.Equal(t, int64(1073741824), results[0].Size)
	assert.Equal(t, "movie-guid", results[0].GUID)
	assert.Equal(t, "test", results[0].Indexer)
	assert.Equal(t, "usenet", results[0].Protocol)

	assert.Equal(t, int64(2048), results[1].Size)
	assert.Equal(t, "https://example.com/getnzb/season", results[1].GUID)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, maxRetries uint64) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c, err := NewClient(config.IndexerConfig{
		Name:       "nzbgeek",
		URL:        srv.URL,
		APIKey:     "secret",
		Timeout:    5 * time.Second,
		Categories: map[string][]int{"tv": {5030, 5040}},
	}, maxRetries, logger)
	require.NoError(t, err)
	return c
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api", r.URL.Path)
		assert.Equal(t, "tvsearch", q.Get("t"))
		assert.Equal(t, "secret", q.Get("apikey"))
		assert.Equal(t, "Test Show", q.Get("q"))
		assert.Equal(t, "1", q.Get("season"))
		assert.Equal(t, "1", q.Get("ep"))
		assert.Equal(t, "5030,5040", q.Get("cat"))
		_, _ = io.WriteString(w, sampleFeed)
	}, 0)

	season, episode := 1, 1
	candidates, err := c.Search(context.Background(), SearchRequest{
		Type:       TypeTVSearch,
		Query:      "Test Show",
		Season:     &season,
		Episode:    &episode,
		Categories: c.CategoriesFor(models.MediaTypeTV),
	})
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, "Test Show S01E01 1080p WEB-DL", candidates[1].Title)
	assert.Equal(t, 2024, candidates[1].PublishedAt.Year())
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, sampleFeed)
	}, 2)

	candidates, err := c.Search(context.Background(), SearchRequest{Type: TypeMovie, Query: "Test Movie"})
	require.NoError(t, err)
	assert.Len(t, candidates, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSearchAPIError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><error code="100" description="Incorrect user credentials"/>`)
	}, 3)

	_, err := c.Search(context.Background(), SearchRequest{Type: TypeSearch, Query: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect user credentials")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(config.IndexerConfig{Name: "x", APIKey: "k"}, 0, logrus.New())
	assert.Error(t, err)
	_, err = NewClient(config.IndexerConfig{Name: "x", URL: "http://x"}, 0, logrus.New())
	assert.Error(t, err)
}
