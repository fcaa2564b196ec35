package nzbget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/services/downloadclient"
	"github.com/amaumene/grabarr/internal/utils"
)

var queueStatus = map[string]models.DownloadStatus{
	"QUEUED":             models.DownloadStatusQueued,
	"PAUSED":             models.DownloadStatusPaused,
	"DOWNLOADING":        models.DownloadStatusDownloading,
	"FETCHING":           models.DownloadStatusDownloading,
	"PP_QUEUED":          models.DownloadStatusDownloading,
	"LOADING_PARS":       models.DownloadStatusDownloading,
	"VERIFYING_SOURCES":  models.DownloadStatusDownloading,
	"REPAIRING":          models.DownloadStatusDownloading,
	"VERIFYING_REPAIRED": models.DownloadStatusDownloading,
	"RENAMING":           models.DownloadStatusDownloading,
	"UNPACKING":          models.DownloadStatusDownloading,
	"MOVING":             models.DownloadStatusDownloading,
	"EXECUTING_SCRIPT":   models.DownloadStatusDownloading,
	"PP_FINISHED":        models.DownloadStatusCompleted,
}

// MapStatus maps an NZBGet queue status or a history status such as
// "SUCCESS/UNPACK"; unknown values are treated as queued
func MapStatus(status string) models.DownloadStatus {
	if s, ok := queueStatus[status]; ok {
		return s
	}
	prefix, _, found := strings.Cut(status, "/")
	if !found {
		return models.DownloadStatusQueued
	}
	switch prefix {
	case "SUCCESS", "WARNING":
		return models.DownloadStatusCompleted
	case "FAILURE", "DELETED":
		return models.DownloadStatusFailed
	}
	return models.DownloadStatusQueued
}

type rpcRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
	ID     int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Name    string `json:"name"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type group struct {
	NZBID           int64  `json:"NZBID"`
	NZBName         string `json:"NZBName"`
	Status          string `json:"Status"`
	FileSizeMB      int64  `json:"FileSizeMB"`
	RemainingSizeMB int64  `json:"RemainingSizeMB"`
	DestDir         string `json:"DestDir"`
}

type historyEntry struct {
	NZBID      int64  `json:"NZBID"`
	Name       string `json:"Name"`
	Status     string `json:"Status"`
	FileSizeMB int64  `json:"FileSizeMB"`
	DestDir    string `json:"DestDir"`
	FinalDir   string `json:"FinalDir"`
}

// Client talks to NZBGet over JSON-RPC
type Client struct {
	name       string
	endpoint   string
	username   string
	password   string
	category   string
	maxRetries uint64
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new NZBGet client
func NewClient(cfg config.ClientConfig, maxRetries uint64, logger *logrus.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("NZBGet URL is required")
	}
	return &Client{
		name:       cfg.Name,
		endpoint:   strings.TrimRight(cfg.URL, "/") + "/jsonrpc",
		username:   cfg.Username,
		password:   cfg.Password,
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

// Add appends an NZB by URL and returns the NZBID
func (c *Client) Add(ctx context.Context, req downloadclient.AddRequest) (string, error) {
	category := req.Category
	if category == "" {
		category = c.category
	}
	params := []interface{}{
		req.Title + ".nzb", // NZBFilename
		req.URL,            // NZBContent, fetched by NZBGet
		category,
		0,     // Priority
		false, // AddToTop
		false, // AddPaused
		"",    // DupeKey
		0,     // DupeScore
		"SCORE",
		[]interface{}{},
	}

	var id int64
	if err := c.submit(ctx, "append", params, &id); err != nil {
		return "", fmt.Errorf("failed to append to NZBGet: %w", err)
	}
	if id <= 0 {
		return "", fmt.Errorf("NZBGet rejected %q", req.Title)
	}

	c.logger.WithFields(logrus.Fields{
		"client": c.name,
		"nzb_id": id,
		"title":  req.Title,
	}).Info("Added download to NZBGet")
	return strconv.FormatInt(id, 10), nil
}

// Items returns queued groups and history entries
func (c *Client) Items(ctx context.Context) ([]downloadclient.Item, error) {
	var groups []group
	if err := c.call(ctx, "listgroups", []interface{}{0}, &groups); err != nil {
		return nil, fmt.Errorf("failed to list NZBGet groups: %w", err)
	}
	var history []historyEntry
	if err := c.call(ctx, "history", []interface{}{false}, &history); err != nil {
		return nil, fmt.Errorf("failed to get NZBGet history: %w", err)
	}

	items := make([]downloadclient.Item, 0, len(groups)+len(history))
	for _, g := range groups {
		var progress float64
		if g.FileSizeMB > 0 {
			progress = float64(g.FileSizeMB-g.RemainingSizeMB) / float64(g.FileSizeMB) * 100
		}
		items = append(items, downloadclient.Item{
			ID:         strconv.FormatInt(g.NZBID, 10),
			Name:       g.NZBName,
			Status:     MapStatus(g.Status),
			RawStatus:  g.Status,
			Progress:   progress,
			Size:       g.FileSizeMB * 1024 * 1024,
			OutputPath: g.DestDir,
		})
	}
	for _, h := range history {
		out := h.FinalDir
		if out == "" {
			out = h.DestDir
		}
		item := downloadclient.Item{
			ID:         strconv.FormatInt(h.NZBID, 10),
			Name:       h.Name,
			Status:     MapStatus(h.Status),
			RawStatus:  h.Status,
			Size:       h.FileSizeMB * 1024 * 1024,
			OutputPath: out,
		}
		switch item.Status {
		case models.DownloadStatusCompleted:
			item.Progress = 100
		case models.DownloadStatusFailed:
			item.Error = h.Status
		}
		items = append(items, item)
	}
	return items, nil
}

// Remove deletes a job from the queue, falling back to the history
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	nzbID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid NZBGet id %q: %w", id, downloadclient.ErrJobNotFound)
	}

	queueCmd, historyCmd := "GroupDelete", "HistoryDelete"
	if deleteFiles {
		queueCmd, historyCmd = "GroupFinalDelete", "HistoryFinalDelete"
	}
	for _, cmd := range []string{queueCmd, historyCmd} {
		var ok bool
		if err := c.call(ctx, "editqueue", []interface{}{cmd, "", []int64{nzbID}}, &ok); err != nil {
			return fmt.Errorf("failed to run NZBGet %s: %w", cmd, err)
		}
		if ok {
			c.logger.WithFields(logrus.Fields{
				"client":  c.name,
				"nzb_id":  nzbID,
				"command": cmd,
			}).Info("Removed download from NZBGet")
			return nil
		}
	}
	return fmt.Errorf("NZBGet job %s: %w", id, downloadclient.ErrJobNotFound)
}

// Test checks connectivity and credentials
func (c *Client) Test(ctx context.Context) error {
	var version string
	if err := c.call(ctx, "version", []interface{}{}, &version); err != nil {
		return fmt.Errorf("NZBGet connection test failed: %w", err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	return c.send(ctx, utils.Retry, method, params, out)
}

// submit sends a request that creates a job
func (c *Client) submit(ctx context.Context, method string, params []interface{}, out interface{}) error {
	return c.send(ctx, utils.RetryUndelivered, method, params, out)
}

func (c *Client) send(ctx context.Context, retry utils.RetryFunc, method string, params []interface{}, out interface{}) error {
	payload, err := json.Marshal(rpcRequest{Method: method, Params: params, ID: 1})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	return retry(ctx, c.maxRetries, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("NZBGet request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return &utils.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		var rpc rpcResponse
		if err := json.Unmarshal(body, &rpc); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if rpc.Error != nil {
			return fmt.Errorf("NZBGet %s error: %s", method, rpc.Error.Message)
		}
		if err := json.Unmarshal(rpc.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
		return nil
	})
}
