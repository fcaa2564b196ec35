package torbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/services/downloadclient"
	"github.com/amaumene/grabarr/internal/utils"
)

const torboxAPIBase = "https://api.torbox.app/v1/api"

// CreateDownloadJobResponse represents the response from creating a download job
type CreateDownloadJobResponse struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
	Detail  string  `json:"detail"` // e.g., "Found cached usenet download. Using cached download."
	Data    struct {
		Hash             string `json:"hash"`
		UsenetDownloadID int    `json:"usenetdownload_id"`
		AuthID           string `json:"auth_id"`
	} `json:"data"`
}

// UsenetDownload represents a usenet download from TorBox
type UsenetDownload struct {
	ID               int     `json:"id"`
	Name             string  `json:"name"`
	Hash             string  `json:"hash"`
	DownloadState    string  `json:"download_state"`
	Progress         float64 `json:"progress"`
	Size             int64   `json:"size"`
	Active           bool    `json:"active"`
	Cached           bool    `json:"cached"` // TRUE if file is cached and ready
	DownloadPresent  bool    `json:"download_present"`
	DownloadFinished bool    `json:"download_finished"`
}

// UsenetListResponse represents the response from listing usenet downloads
type UsenetListResponse struct {
	Success bool             `json:"success"`
	Error   *string          `json:"error"`
	Detail  string           `json:"detail"`
	Data    []UsenetDownload `json:"data"`
}

// MapStatus maps a TorBox download to a download status
func MapStatus(d UsenetDownload) models.DownloadStatus {
	state := strings.ToLower(d.DownloadState)
	switch {
	case d.Cached || d.DownloadFinished || state == "completed" || state == "cached":
		return models.DownloadStatusCompleted
	case strings.Contains(state, "fail") || strings.Contains(state, "error"):
		return models.DownloadStatusFailed
	case strings.Contains(state, "paused"):
		return models.DownloadStatusPaused
	case state == "" || strings.Contains(state, "queued"):
		return models.DownloadStatusQueued
	default:
		return models.DownloadStatusDownloading
	}
}

// Client wraps the TorBox usenet API
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	mountPath  string
	maxRetries uint64
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new TorBox client
func NewClient(cfg config.ClientConfig, maxRetries uint64, logger *logrus.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("TorBox API key is required")
	}
	base := cfg.URL
	if base == "" {
		base = torboxAPIBase
	}

	return &Client{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     cfg.APIKey,
		mountPath:  cfg.MountPath,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// Name returns the configured client name
func (c *Client) Name() string { return c.name }

// Protocol returns the protocol this client downloads
func (c *Client) Protocol() string { return downloadclient.ProtocolUsenet }

// Add creates a usenet download job from an NZB link
func (c *Client) Add(ctx context.Context, req downloadclient.AddRequest) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("link", req.URL); err != nil {
		return "", fmt.Errorf("failed to add link field: %w", err)
	}
	// name helps TorBox identify the download in webhooks
	if req.Title != "" {
		if err := writer.WriteField("name", req.Title); err != nil {
			return "", fmt.Errorf("failed to add name field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var result CreateDownloadJobResponse
	err := c.do(ctx, http.MethodPost, "/usenet/createusenetdownload", buf.Bytes(), writer.FormDataContentType(), &result)
	if err != nil {
		return "", fmt.Errorf("failed to create TorBox job: %w", err)
	}
	if !result.Success {
		return "", fmt.Errorf("job creation failed: %s", result.Detail)
	}

	jobID := strconv.Itoa(result.Data.UsenetDownloadID)
	c.logger.WithFields(logrus.Fields{
		"client": c.name,
		"job_id": jobID,
		"detail": result.Detail,
	}).Info("Created TorBox download job")
	return jobID, nil
}

// Items lists usenet downloads, exposing finished ones under the mount path
func (c *Client) Items(ctx context.Context) ([]downloadclient.Item, error) {
	var result UsenetListResponse
	if err := c.do(ctx, http.MethodGet, "/usenet/mylist", nil, "", &result); err != nil {
		return nil, fmt.Errorf("failed to list TorBox downloads: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("failed to list downloads: %s", result.Detail)
	}

	items := make([]downloadclient.Item, 0, len(result.Data))
	for _, d := range result.Data {
		item := downloadclient.Item{
			ID:        strconv.Itoa(d.ID),
			Name:      d.Name,
			Status:    MapStatus(d),
			RawStatus: d.DownloadState,
			Progress:  d.Progress * 100,
			Size:      d.Size,
		}
		if item.Status == models.DownloadStatusCompleted {
			item.Progress = 100
			if c.mountPath != "" {
				item.OutputPath = filepath.Join(c.mountPath, d.Name)
			}
		}
		if item.Status == models.DownloadStatusFailed {
			item.Error = d.DownloadState
		}
		items = append(items, item)
	}
	return items, nil
}

// Remove deletes a usenet download
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	usenetID, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("invalid job ID %q: %w", id, downloadclient.ErrJobNotFound)
	}
	return c.ControlUsenetDownload(ctx, usenetID, "delete")
}

// Test checks the API key by listing downloads
func (c *Client) Test(ctx context.Context) error {
	if _, err := c.Items(ctx); err != nil {
		return fmt.Errorf("TorBox connection test failed: %w", err)
	}
	return nil
}

// ControlUsenetDownload controls a usenet download (delete, pause, etc.)
func (c *Client) ControlUsenetDownload(ctx context.Context, usenetID int, operation string) error {
	jsonData, err := json.Marshal(map[string]interface{}{
		"usenet_id": usenetID,
		"operation": operation,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	var result struct {
		Success bool   `json:"success"`
		Detail  string `json:"detail"`
	}
	if err := c.do(ctx, http.MethodPost, "/usenet/controlusenetdownload", jsonData, "application/json", &result); err != nil {
		var se *utils.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return fmt.Errorf("usenet download %d: %w", usenetID, downloadclient.ErrJobNotFound)
		}
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"usenet_id": usenetID,
		"operation": operation,
	}).Info("Controlled TorBox usenet download")
	return nil
}

// do sends a request. Reads are retried; writes only when they were never delivered.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string, out interface{}) error {
	retry := utils.Retry
	if method != http.MethodGet {
		retry = utils.RetryUndelivered
	}
	return retry(ctx, c.maxRetries, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return &utils.StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
		}

		c.logger.WithFields(logrus.Fields{
			"path":        path,
			"status_code": resp.StatusCode,
		}).Debug("TorBox API response")

		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}
