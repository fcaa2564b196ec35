package sabnzbd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/services/downloadclient"
	"github.com/amaumene/grabarr/internal/utils"
)

// statusMap maps SABnzbd queue and history status strings
var statusMap = map[string]models.DownloadStatus{
	"Queued":      models.DownloadStatusQueued,
	"Paused":      models.DownloadStatusPaused,
	"Downloading": models.DownloadStatusDownloading,
	"Grabbing":    models.DownloadStatusDownloading,
	"Fetching":    models.DownloadStatusDownloading,
	"Propagating": models.DownloadStatusDownloading,
	"Checking":    models.DownloadStatusDownloading,
	"QuickCheck":  models.DownloadStatusDownloading,
	"Verifying":   models.DownloadStatusDownloading,
	"Repairing":   models.DownloadStatusDownloading,
	"Extracting":  models.DownloadStatusDownloading,
	"Moving":      models.DownloadStatusDownloading,
	"Running":     models.DownloadStatusDownloading,
	"Completed":   models.DownloadStatusCompleted,
	"Failed":      models.DownloadStatusFailed,
}

// MapStatus maps a SABnzbd status string; unknown values are treated as queued
func MapStatus(status string) models.DownloadStatus {
	if s, ok := statusMap[status]; ok {
		return s
	}
	return models.DownloadStatusQueued
}

type addResponse struct {
	Status bool     `json:"status"`
	NzoIDs []string `json:"nzo_ids"`
	Error  string   `json:"error"`
}

type queueResponse struct {
	Queue struct {
		Slots []queueSlot `json:"slots"`
	} `json:"queue"`
}

type queueSlot struct {
	NzoID      string `json:"nzo_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Percentage string `json:"percentage"`
	MB         string `json:"mb"`
}

type historyResponse struct {
	History struct {
		Slots []historySlot `json:"slots"`
	} `json:"history"`
}

type historySlot struct {
	NzoID       string `json:"nzo_id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Storage     string `json:"storage"`
	FailMessage string `json:"fail_message"`
	Bytes       int64  `json:"bytes"`
}

// Client talks to the SABnzbd HTTP JSON API
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	category   string
	maxRetries uint64
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new SABnzbd client
func NewClient(cfg config.ClientConfig, maxRetries uint64, logger *logrus.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("SABnzbd URL is required")
	}
	return &Client{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		category:   cfg.Category,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// Name returns the configured client name
func (c *Client) Name() string { return c.name }

// Protocol returns the protocol this client downloads
func (c *Client) Protocol() string { return downloadclient.ProtocolUsenet }

// Add submits an NZB URL and returns the nzo_id
func (c *Client) Add(ctx context.Context, req downloadclient.AddRequest) (string, error) {
	params := url.Values{}
	params.Set("mode", "addurl")
	params.Set("name", req.URL)
	params.Set("nzbname", req.Title)
	category := req.Category
	if category == "" {
		category = c.category
	}
	if category != "" {
		params.Set("cat", category)
	}

	var resp addResponse
	if err := c.submit(ctx, params, &resp); err != nil {
		return "", fmt.Errorf("failed to add to SABnzbd: %w", err)
	}
	if !resp.Status || len(resp.NzoIDs) == 0 {
		return "", fmt.Errorf("SABnzbd rejected %q: %s", req.Title, resp.Error)
	}

	c.logger.WithFields(logrus.Fields{
		"client": c.name,
		"nzo_id": resp.NzoIDs[0],
		"title":  req.Title,
	}).Info("Added download to SABnzbd")
	return resp.NzoIDs[0], nil
}

// Items returns queue and history jobs
func (c *Client) Items(ctx context.Context) ([]downloadclient.Item, error) {
	var queue queueResponse
	if err := c.call(ctx, url.Values{"mode": {"queue"}}, &queue); err != nil {
		return nil, fmt.Errorf("failed to get SABnzbd queue: %w", err)
	}
	var history historyResponse
	if err := c.call(ctx, url.Values{"mode": {"history"}, "limit": {"100"}}, &history); err != nil {
		return nil, fmt.Errorf("failed to get SABnzbd history: %w", err)
	}

	items := make([]downloadclient.Item, 0, len(queue.Queue.Slots)+len(history.History.Slots))
	for _, slot := range queue.Queue.Slots {
		progress, _ := strconv.ParseFloat(slot.Percentage, 64)
		mb, _ := strconv.ParseFloat(slot.MB, 64)
		items = append(items, downloadclient.Item{
			ID:        slot.NzoID,
			Name:      slot.Filename,
			Status:    MapStatus(slot.Status),
			RawStatus: slot.Status,
			Progress:  progress,
			Size:      int64(mb * 1024 * 1024),
		})
	}
	for _, slot := range history.History.Slots {
		item := downloadclient.Item{
			ID:         slot.NzoID,
			Name:       slot.Name,
			Status:     MapStatus(slot.Status),
			RawStatus:  slot.Status,
			Size:       slot.Bytes,
			OutputPath: slot.Storage,
			Error:      slot.FailMessage,
		}
		if item.Status == models.DownloadStatusCompleted {
			item.Progress = 100
		}
		items = append(items, item)
	}
	return items, nil
}

// Remove deletes a job from the queue or the history
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	del := "0"
	if deleteFiles {
		del = "1"
	}
	for _, mode := range []string{"queue", "history"} {
		params := url.Values{"mode": {mode}, "name": {"delete"}, "value": {id}, "del_files": {del}}
		var resp struct {
			Status bool `json:"status"`
		}
		if err := c.call(ctx, params, &resp); err != nil {
			return fmt.Errorf("failed to delete from SABnzbd %s: %w", mode, err)
		}
		if resp.Status {
			c.logger.WithFields(logrus.Fields{
				"client": c.name,
				"nzo_id": id,
				"from":   mode,
			}).Info("Removed download from SABnzbd")
			return nil
		}
	}
	return fmt.Errorf("SABnzbd job %s: %w", id, downloadclient.ErrJobNotFound)
}

// Test checks connectivity and the API key
func (c *Client) Test(ctx context.Context) error {
	var resp struct {
		Version string `json:"version"`
	}
	if err := c.call(ctx, url.Values{"mode": {"version"}}, &resp); err != nil {
		return fmt.Errorf("SABnzbd connection test failed: %w", err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, params url.Values, out interface{}) error {
	return c.send(ctx, utils.Retry, params, out)
}

// submit sends a request that creates a job
func (c *Client) submit(ctx context.Context, params url.Values, out interface{}) error {
	return c.send(ctx, utils.RetryUndelivered, params, out)
}

func (c *Client) send(ctx context.Context, retry utils.RetryFunc, params url.Values, out interface{}) error {
	params.Set("apikey", c.apiKey)
	params.Set("output", "json")
	endpoint := c.baseURL + "/api?" + params.Encode()

	return retry(ctx, c.maxRetries, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", "grabarr/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("SABnzbd request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return &utils.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}
