package torbox

import (
	"fmt"
	"regexp"
	"time"

	"github.com/amaumene/grabarr/internal/models"
)

var (
	downloadNameRegex = regexp.MustCompile(`download (.+?) has`)
	hashRegex         = regexp.MustCompile(`hash ([a-f0-9]{32})`)
)

// WebhookPayload represents the webhook payload from TorBox
type WebhookPayload struct {
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Data      NotificationData `json:"data"`
}

// NotificationData contains the notification details
type NotificationData struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// ExtractDownloadName extracts the download name from the notification message
// Message format: "download Bosch.Legacy.S03E01.720p has completed"
func (p *WebhookPayload) ExtractDownloadName() (string, error) {
	match := downloadNameRegex.FindStringSubmatch(p.Data.Message)
	if len(match) < 2 {
		return "", fmt.Errorf("failed to extract download name from message: %s", p.Data.Message)
	}
	return match[1], nil
}

// ExtractHash extracts the hash from the notification message
// Message format: "The NZB with hash 5048ac7b66712696b0c2d06b3e14066a failed to download..."
func (p *WebhookPayload) ExtractHash() (string, error) {
	match := hashRegex.FindStringSubmatch(p.Data.Message)
	if len(match) < 2 {
		return "", fmt.Errorf("failed to extract hash from message: %s", p.Data.Message)
	}
	return match[1], nil
}

// Status returns the download status announced by the notification, and
// false when the notification is not about a finished download
func (p *WebhookPayload) Status() (models.DownloadStatus, bool) {
	switch p.Data.Title {
	case "Usenet Download Completed":
		return models.DownloadStatusCompleted, true
	case "Usenet Download Failed":
		return models.DownloadStatusFailed, true
	default:
		return "", false
	}
}
