package torbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/services/downloadclient"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c, err := NewClient(config.ClientConfig{
		Name:      "torbox",
		URL:       srv.URL,
		APIKey:    "token",
		MountPath: "/mnt/torbox",
		Timeout:   5 * time.Second,
	}, 0, logger)
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(config.ClientConfig{Name: "torbox"}, 0, logrus.New())
	assert.Error(t, err)
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in   UsenetDownload
		want models.DownloadStatus
	}{
		{UsenetDownload{Cached: true}, models.DownloadStatusCompleted},
		{UsenetDownload{DownloadFinished: true, DownloadState: "uploading"}, models.DownloadStatusCompleted},
		{UsenetDownload{DownloadState: "completed"}, models.DownloadStatusCompleted},
		{UsenetDownload{DownloadState: "failed"}, models.DownloadStatusFailed},
		{UsenetDownload{DownloadState: "paused"}, models.DownloadStatusPaused},
		{UsenetDownload{DownloadState: "queued"}, models.DownloadStatusQueued},
		{UsenetDownload{DownloadState: ""}, models.DownloadStatusQueued},
		{UsenetDownload{DownloadState: "downloading"}, models.DownloadStatusDownloading},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapStatus(tt.in), tt.in.DownloadState)
	}
}

func TestAdd(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usenet/createusenetdownload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "https://indexer/get/1", r.FormValue("link"))
		assert.Equal(t, "Show.S01E01", r.FormValue("name"))
		_, _ = io.WriteString(w, `{"success":true,"detail":"ok","data":{"usenetdownload_id":99}}`)
	})

	id, err := c.Add(context.Background(), downloadclient.AddRequest{Title: "Show.S01E01", URL: "https://indexer/get/1"})
	require.NoError(t, err)
	assert.Equal(t, "99", id)
}

func TestItems(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usenet/mylist", r.URL.Path)
		_ = json.NewEncoder(w).Encode(UsenetListResponse{
			Success: true,
			Data: []UsenetDownload{
				{ID: 1, Name: "Show.S01E01", DownloadState: "downloading", Progress: 0.5},
				{ID: 2, Name: "Movie.2020", Cached: true},
			},
		})
	})

	items, err := c.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, models.DownloadStatusDownloading, items[0].Status)
	assert.Equal(t, 50.0, items[0].Progress)
	assert.Empty(t, items[0].OutputPath)

	assert.Equal(t, models.DownloadStatusCompleted, items[1].Status)
	assert.Equal(t, filepath.Join("/mnt/torbox", "Movie.2020"), items[1].OutputPath)
}

func TestRemove(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usenet/controlusenetdownload", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(7), body["usenet_id"])
		assert.Equal(t, "delete", body["operation"])
		_, _ = io.WriteString(w, `{"success":true}`)
	})

	require.NoError(t, c.Remove(context.Background(), "7", true))
	assert.ErrorIs(t, c.Remove(context.Background(), "nope", true), downloadclient.ErrJobNotFound)
}

func TestRemoveNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	assert.ErrorIs(t, c.Remove(context.Background(), "7", true), downloadclient.ErrJobNotFound)
}

func TestWebhookPayload(t *testing.T) {
	completed := WebhookPayload{Data: NotificationData{
		Title:   "Usenet Download Completed",
		Message: "download Bosch.Legacy.S03E01.720p has completed",
	}}
	name, err := completed.ExtractDownloadName()
	require.NoError(t, err)
	assert.Equal(t, "Bosch.Legacy.S03E01.720p", name)
	status, ok := completed.Status()
	assert.True(t, ok)
	assert.Equal(t, models.DownloadStatusCompleted, status)

	failed := WebhookPayload{Data: NotificationData{
		Title:   "Usenet Download Failed",
		Message: "The NZB with hash 5048ac7b66712696b0c2d06b3e14066a failed to download",
	}}
	hash, err := failed.ExtractHash()
	require.NoError(t, err)
	assert.Equal(t, "5048ac7b66712696b0c2d06b3e14066a", hash)
	status, ok = failed.Status()
	assert.True(t, ok)
	assert.Equal(t, models.DownloadStatusFailed, status)

	other := WebhookPayload{Data: NotificationData{Title: "Something else"}}
	_, ok = other.Status()
	assert.False(t, ok)
	_, err = other.ExtractDownloadName()
	assert.Error(t, err)
}

func TestAddIsNotResentAfterDelivery(t *testing.T) {
	var creates int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&creates, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c, err := NewClient(config.ClientConfig{Name: "torbox", URL: srv.URL, APIKey: "token", Timeout: time.Second}, 3, logger)
	require.NoError(t, err)

	_, err = c.Add(context.Background(), downloadclient.AddRequest{Title: "Show.S01E01", URL: "https://indexer/get/1"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&creates))
}
