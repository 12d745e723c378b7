package blackhole

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/westsurname/blackhole/pkg/arr"
)

// Refresher nudges a manager's download queue after materialization. At most
// one refresh runs per process; starting a new one cancels the previous, so
// the manager always sees a full window of refreshes for the newest import.
type Refresher struct {
	iterations int
	interval   time.Duration
	logger     zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewRefresher(log zerolog.Logger) *Refresher {
	return &Refresher{
		iterations: 60,
		interval:   time.Second,
		logger:     log,
	}
}

// Refresh issues RefreshMonitoredDownloads once per interval for the
// configured number of iterations. Returns false when cancelled, either by a
// newer refresh or by the parent context.
func (r *Refresher) Refresh(ctx context.Context, target *arr.Arr) bool {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.cancel = cancel
	r.mu.Unlock()

	r.logger.Debug().Msgf("Refreshing %s monitored downloads", target.Name)
	for i := 0; i < r.iterations; i++ {
		if err := target.RefreshMonitoredDownloads(); err != nil {
			r.logger.Warn().Err(err).Msgf("Refresh command failed for %s", target.Name)
		}
		select {
		case <-ctx.Done():
			r.logger.Debug().Msgf("Refresh for %s superseded", target.Name)
			return false
		case <-time.After(r.interval):
		}
	}
	return true
}
