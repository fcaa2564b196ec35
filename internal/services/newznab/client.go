package newznab

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/services/downloadclient"
	"github.com/amaumene/grabarr/internal/utils"
)

// Search types understood by newznab indexers
const (
	TypeSearch   = "search"
	TypeTVSearch = "tvsearch"
	TypeMovie    = "movie"
	TypeMusic    = "music"
	TypeBook     = "book"
)

// NewznabResponse represents the XML RSS response from Newznab API
type NewznabResponse struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Channel represents the channel element in RSS
type Channel struct {
	Title string `xml:"title"`
	Items []Item `xml:"item"`
}

// Item represents a single search result
type Item struct {
	Title      string      `xml:"title"`
	Link       string      `xml:"link"` // Details page (not for download)
	GUID       string      `xml:"guid"`
	PubDate    string      `xml:"pubDate"`
	Enclosure  Enclosure   `xml:"enclosure"` // The actual NZB download URL
	Attributes []Attribute `xml:"attr"`
}

// Enclosure represents the enclosure element containing the NZB download URL
type Enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"` // Usually "application/x-nzb"
}

// Attribute represents a Newznab attribute (e.g., season, episode, size)
type Attribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// apiError is returned by indexers instead of an rss document
type apiError struct {
	XMLName     xml.Name `xml:"error"`
	Code        string   `xml:"code,attr"`
	Description string   `xml:"description,attr"`
}

// SearchRequest describes one indexer query
type SearchRequest struct {
	Type       string
	Query      string
	Season     *int
	Episode    *int
	Artist     string
	Album      string
	Author     string
	Title      string
	Categories []int
}

// Client wraps direct Newznab API HTTP calls for one indexer
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	timeout    time.Duration
	categories map[string][]int
	maxRetries uint64
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new Newznab client for an indexer
func NewClient(cfg config.IndexerConfig, maxRetries uint64, logger *logrus.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("newznab URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("newznab API key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		name:       cfg.Name,
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		categories: cfg.Categories,
		maxRetries: maxRetries,
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

// Name returns the indexer name
func (c *Client) Name() string { return c.name }

// CategoriesFor returns the configured categories of a media type
func (c *Client) CategoriesFor(mt models.MediaType) []int {
	return c.categories[string(mt)]
}

// Search queries the indexer; the whole call, retries included, is bounded
// by the indexer timeout
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	endpoint, err := c.buildURL(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.WithFields(logrus.Fields{
		"indexer":     c.name,
		"search_type": req.Type,
		"query":       req.Query,
		"season":      req.Season,
		"episode":     req.Episode,
	}).Debug("Performing Newznab search")

	var items []Item
	err = utils.Retry(ctx, c.maxRetries, func() error {
		items, err = c.search(ctx, endpoint)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("indexer %s search failed: %w", c.name, err)
	}

	c.logger.WithFields(logrus.Fields{
		"indexer": c.name,
		"count":   len(items),
	}).Debug("Newznab search completed")

	return c.convertResults(items), nil
}

func (c *Client) buildURL(req SearchRequest) (string, error) {
	apiURL, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid newznab URL: %w", err)
	}
	if apiURL.Path == "" || apiURL.Path == "/" {
		apiURL.Path = "/api"
	}

	searchType := req.Type
	if searchType == "" {
		searchType = TypeSearch
	}

	params := url.Values{}
	params.Set("t", searchType)
	params.Set("apikey", c.apiKey)
	params.Set("extended", "1")
	if req.Query != "" {
		params.Set("q", req.Query)
	}
	if req.Season != nil {
		params.Set("season", strconv.Itoa(*req.Season))
	}
	if req.Episode != nil {
		params.Set("ep", strconv.Itoa(*req.Episode))
	}
	if req.Artist != "" {
		params.Set("artist", req.Artist)
	}
	if req.Album != "" {
		params.Set("album", req.Album)
	}
	if req.Author != "" {
		params.Set("author", req.Author)
	}
	if req.Title != "" {
		params.Set("title", req.Title)
	}
	if len(req.Categories) > 0 {
		cats := make([]string, len(req.Categories))
		for i, cat := range req.Categories {
			cats[i] = strconv.Itoa(cat)
		}
		params.Set("cat", strings.Join(cats, ","))
	}

	apiURL.RawQuery = params.Encode()
	return apiURL.String(), nil
}

// search performs one Newznab API request
func (c *Client) search(ctx context.Context, endpoint string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "grabarr/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newznab API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"indexer":     c.name,
			"status_code": resp.StatusCode,
		}).Error("Newznab API returned non-OK status")
		return nil, &utils.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var apiErr apiError
	if xml.Unmarshal(body, &apiErr) == nil {
		return nil, &utils.StatusError{
			StatusCode: http.StatusBadRequest,
			Body:       fmt.Sprintf("newznab error %s: %s", apiErr.Code, apiErr.Description),
		}
	}

	var nzResponse NewznabResponse
	if err := xml.Unmarshal(body, &nzResponse); err != nil {
		return nil, fmt.Errorf("failed to parse XML response: %w", err)
	}
	return nzResponse.Channel.Items, nil
}

// convertResults converts Newznab Items to candidates
func (c *Client) convertResults(items []Item) []models.Candidate {
	results := make([]models.Candidate, 0, len(items))
	for _, item := range items {
		// The enclosure is the NZB link; item.Link is the details page
		downloadURL := item.Enclosure.URL
		if downloadURL == "" {
			downloadURL = item.Link
		}
		if downloadURL == "" || item.Title == "" {
			continue
		}

		guid := item.GUID
		if guid == "" {
			guid = downloadURL
		}

		size := GetAttributeInt64(item, "size")
		if size == 0 {
			size = item.Enclosure.Length
		}

		published, _ := time.Parse(time.RFC1123Z, item.PubDate)

		results = append(results, models.Candidate{
			Title:       item.Title,
			DownloadURL: downloadURL,
			Size:        size,
			GUID:        guid,
			Indexer:     c.name,
			Protocol:    downloadclient.ProtocolUsenet,
			PublishedAt: published,
		})
	}
	return results
}

// GetAttributeValue extracts an attribute value by name from an Item
func GetAttributeValue(item Item, attrName string) string {
	for _, attr := range item.Attributes {
		if attr.Name == attrName {
			return attr.Value
		}
	}
	return ""
}

// GetAttributeInt64 extracts an attribute value as int64
func GetAttributeInt64(item Item, attrName string) int64 {
	value := GetAttributeValue(item, attrName)
	if value == "" {
		return 0
	}

	intVal, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return intVal
}
