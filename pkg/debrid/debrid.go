package debrid

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/westsurname/blackhole/internal/config"
	"github.com/westsurname/blackhole/internal/logger"
	"github.com/westsurname/blackhole/internal/notifier"
	"github.com/westsurname/blackhole/internal/utils"
	"github.com/westsurname/blackhole/pkg/debrid/providers/realdebrid"
	"github.com/westsurname/blackhole/pkg/debrid/providers/torbox"
	"github.com/westsurname/blackhole/pkg/debrid/types"
)

// Client is the capability set the ingest pipeline needs from a provider.
// Submit returns utils.NotCachedError when instant availability is required
// but not met; Info maps provider statuses onto the canonical set.
type Client interface {
	Name() string
	Logger() zerolog.Logger

	// Submit adds the torrent or magnet and returns a record carrying the
	// provider id. When failIfNotCached is set, a negative availability
	// probe returns utils.NotCachedError without creating a job.
	Submit(ctx context.Context, magnet *utils.Magnet) (*types.Torrent, error)
	// Info refreshes status, progress, filenames, and files in place.
	Info(ctx context.Context, t *types.Torrent) error
	// SelectFiles chooses media files for providers that require explicit
	// selection. Providers without that step return nil.
	SelectFiles(ctx context.Context, t *types.Torrent, onlyLargest bool) error
	// ResolveMountDir returns the torrent's directory under the mount, or
	// utils.MountNotFoundError while it is not yet visible.
	ResolveMountDir(t *types.Torrent) (string, error)
	// Delete releases the provider-side job. Best effort.
	Delete(t *types.Torrent) error

	MountPath() string
	// Validate probes connectivity and credentials at startup.
	Validate(ctx context.Context) error
}

// NewClients builds one client per enabled provider, in submission order.
func NewClients(cfg *config.Config, note *notifier.Notifier) []Client {
	clients := make([]Client, 0, 2)
	for _, dc := range cfg.Debrids() {
		switch dc.Name {
		case "realdebrid":
			clients = append(clients, realdebrid.New(dc, cfg, note))
		case "torbox":
			clients = append(clients, torbox.New(dc, cfg))
		default:
			logger.Default().Warn().Msgf("Unknown debrid provider %s, skipping", dc.Name)
		}
	}
	return clients
}
