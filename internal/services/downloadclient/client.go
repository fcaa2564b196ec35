// Package downloadclient defines the contract every download client adapter implements.
package downloadclient

import (
	"context"
	"errors"

	"github.com/amaumene/grabarr/internal/models"
)

// ErrJobNotFound is returned when the client does not know a job id
var ErrJobNotFound = errors.New("job not found")

// ProtocolUsenet is the protocol of newznab releases
const ProtocolUsenet = "usenet"

// AddRequest describes a release to submit to a client
type AddRequest struct {
	Title    string
	URL      string
	Category string
}

// Item is the client-side state of a job, with the status already mapped
type Item struct {
	ID         string
	Name       string
	Status     models.DownloadStatus
	RawStatus  string
	Progress   float64
	Size       int64
	OutputPath string
	Error      string
}

// Client is implemented by every download client family
type Client interface {
	Name() string
	Protocol() string
	Add(ctx context.Context, req AddRequest) (string, error)
	Items(ctx context.Context) ([]Item, error)
	Remove(ctx context.Context, id string, deleteFiles bool) error
	Test(ctx context.Context) error
}
