package blackhole

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/westsurname/blackhole/internal/config"
	"github.com/westsurname/blackhole/internal/logger"
	"github.com/westsurname/blackhole/internal/notifier"
	"github.com/westsurname/blackhole/internal/utils"
	"github.com/westsurname/blackhole/pkg/arr"
	"github.com/westsurname/blackhole/pkg/debrid"
	"github.com/westsurname/blackhole/pkg/debrid/types"
)

// backendResult distinguishes provider failures, which fall through to
// fail(), from local filesystem failures, which must not: the grab itself is
// fine when the local disk is the problem.
type backendResult int

const (
	resultFailed backendResult = iota
	resultSuccess
	resultLocalError
)

// Processor drives one torrent file per call through submission, polling,
// mount discovery, materialization, and queue refresh.
type Processor struct {
	cfg       *config.Config
	clients   []debrid.Client
	notifier  *notifier.Notifier
	refresher *Refresher
	logger    zerolog.Logger
}

func NewProcessor(cfg *config.Config, clients []debrid.Client, note *notifier.Notifier) *Processor {
	log := logger.New("process")
	return &Processor{
		cfg:       cfg,
		clients:   clients,
		notifier:  note,
		refresher: NewRefresher(log),
		logger:    log,
	}
}

// ProcessFile runs the full ingest for one file. Any panic-free outcome
// leaves nothing in processing/; unrecoverable provider failure marks the
// grab failed at the manager so it picks an alternative release.
func (p *Processor) ProcessFile(ctx context.Context, file TorrentFile, target *arr.Arr) {
	// Claim. A failed rename means another worker got it or the file
	// vanished, neither of which is an error.
	if err := os.Rename(file.WatchPath, file.ProcessingPath); err != nil {
		p.logger.Debug().Err(err).Msgf("Could not claim %s", file.Filename)
		return
	}
	defer func() {
		if err := os.Remove(file.ProcessingPath); err != nil && !os.IsNotExist(err) {
			p.logger.Warn().Err(err).Msgf("Could not remove %s", file.ProcessingPath)
		}
	}()

	magnet, err := utils.OpenMagnetFile(file.ProcessingPath)
	if err != nil {
		p.logger.Error().Err(err).Msgf("Could not read %s", file.Filename)
		p.notifier.Error("Unreadable grab", fmt.Sprintf("%s: %v", file.Filename, err))
		p.fail(file, "", target)
		return
	}

	onlyLargest := target.Type == arr.Radarr || isSingleEpisode(file.Filename)

	var result backendResult
	if p.cfg.Blackhole.FailIfNotCached {
		result = p.runSequential(ctx, magnet, file, target, onlyLargest)
	} else {
		result = p.runParallel(ctx, magnet, file, target, onlyLargest)
	}

	if result == resultFailed {
		p.fail(file, magnet.InfoHash, target)
	}
}

// runSequential tries providers in order; the first success wins and only
// exhausting the list counts as failure.
func (p *Processor) runSequential(ctx context.Context, magnet *utils.Magnet, file TorrentFile, target *arr.Arr, onlyLargest bool) backendResult {
	result := resultFailed
	for _, client := range p.clients {
		result = p.runBackend(ctx, client, magnet, file, target, onlyLargest)
		if result != resultFailed {
			break
		}
	}
	return result
}

// runParallel races all providers; any success wins. Symlink creation is
// idempotent, so double materialization by two winners converges.
func (p *Processor) runParallel(ctx context.Context, magnet *utils.Magnet, file TorrentFile, target *arr.Arr, onlyLargest bool) backendResult {
	var mu sync.Mutex
	result := resultFailed

	g, ctx := errgroup.WithContext(ctx)
	for _, client := range p.clients {
		client := client
		g.Go(func() error {
			r := p.runBackend(ctx, client, magnet, file, target, onlyLargest)
			mu.Lock()
			if r > result {
				result = r
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func (p *Processor) runBackend(ctx context.Context, client debrid.Client, magnet *utils.Magnet, file TorrentFile, target *arr.Arr, onlyLargest bool) backendResult {
	log := client.Logger().With().Str("file", file.Stem).Logger()

	t, err := client.Submit(ctx, magnet)
	if err != nil {
		if errors.Is(err, utils.NotCachedError) {
			log.Info().Msgf("%s is not cached on %s", file.Stem, client.Name())
		} else {
			log.Error().Err(err).Msgf("Submission to %s failed", client.Name())
		}
		return resultFailed
	}

	if outcome := p.waitForCompletion(ctx, client, t, onlyLargest, log); outcome != waitCompleted {
		p.release(client, t, log)
		switch outcome {
		case waitTimedOut:
			p.notifier.Error("Torrent timed out", fmt.Sprintf("%s on %s", file.Stem, client.Name()))
		case waitHashUnverifiable:
			p.notifier.Error("Cache status unverifiable", fmt.Sprintf("%s has a non-SHA1 infohash; %s cannot confirm availability", file.Stem, client.Name()))
		}
		return resultFailed
	}

	mountDir, err := p.discoverMount(ctx, client, t)
	if err != nil {
		log.Error().Err(err).Msgf("Mount folder for %s never appeared", file.Stem)
		p.notifier.Error("Folder not found", fmt.Sprintf("%s on %s mount", file.Stem, client.Name()))
		p.release(client, t, log)
		return resultFailed
	}

	if err := materialize(mountDir, file, log); err != nil {
		log.Error().Err(err).Msgf("Symlink creation failed for %s", file.Stem)
		p.notifier.Error("Symlink creation failed", fmt.Sprintf("%s: %v", file.Stem, err))
		return resultLocalError
	}

	p.refresher.Refresh(ctx, target)
	p.notifier.Update("Import ready", fmt.Sprintf("%s via %s", file.Stem, client.Name()))
	return resultSuccess
}

// waitOutcome says why polling stopped, so failures notify with the right
// message.
type waitOutcome int

const (
	waitCompleted waitOutcome = iota
	waitErrored
	waitTimedOut
	waitHashUnverifiable
	waitCancelled
)

// waitForCompletion polls Info once per second until the torrent completes
// or fails. The polling deadline only applies when cached content was
// demanded; otherwise the provider is allowed to download at its own pace.
func (p *Processor) waitForCompletion(ctx context.Context, client debrid.Client, t *types.Torrent, onlyLargest bool, log zerolog.Logger) waitOutcome {
	failIfNotCached := p.cfg.Blackhole.FailIfNotCached
	deadline := time.Now().Add(time.Duration(p.cfg.Blackhole.WaitForTorrentTimeout) * time.Second)

	for {
		if err := client.Info(ctx, t); err != nil {
			log.Error().Err(err).Msgf("Status poll failed for %s", t.Id)
			return waitErrored
		}

		switch t.Status {
		case types.StatusAwaitingFileSelection:
			if err := client.SelectFiles(ctx, t, onlyLargest); err != nil {
				log.Error().Err(err).Msgf("File selection failed for %s", t.Id)
				return waitErrored
			}
		case types.StatusCompleted:
			return waitCompleted
		case types.StatusErrored:
			log.Error().Msgf("Torrent %s errored at %s", t.Id, client.Name())
			return waitErrored
		case types.StatusDownloading:
			if failIfNotCached && t.Magnet.IncompatibleHashSize() {
				log.Warn().Msgf("Cannot verify cache status of non-SHA1 hash %s", t.InfoHash)
				return waitHashUnverifiable
			}
			if failIfNotCached && time.Now().After(deadline) {
				log.Error().Msgf("Torrent %s still downloading after %ds", t.Id, p.cfg.Blackhole.WaitForTorrentTimeout)
				return waitTimedOut
			}
		}

		select {
		case <-ctx.Done():
			return waitCancelled
		case <-time.After(time.Second):
		}
	}
}

// discoverMount polls for the torrent's folder under the provider mount for
// rdMountRefreshSeconds+1 iterations, one second apart.
func (p *Processor) discoverMount(ctx context.Context, client debrid.Client, t *types.Torrent) (string, error) {
	attempts := p.cfg.Blackhole.RDMountRefreshSeconds + 1
	for i := 0; i < attempts; i++ {
		dir, err := client.ResolveMountDir(t)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, utils.MountNotFoundError) {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return "", utils.MountNotFoundError
}

func (p *Processor) release(client debrid.Client, t *types.Torrent, log zerolog.Logger) {
	if err := client.Delete(t); err != nil {
		log.Warn().Err(err).Msgf("Could not delete torrent %s", t.Id)
	}
}

// fail marks the grab failed at the manager by matching recent history
// either on infohash or on sanitized source title, so the manager searches
// for another release.
func (p *Processor) fail(file TorrentFile, infoHash string, target *arr.Arr) {
	p.logger.Info().Msgf("Marking %s as failed in %s", file.Stem, target.Name)

	history, err := target.GetHistory(p.cfg.Blackhole.HistoryPageSize)
	if err != nil {
		p.logger.Error().Err(err).Msgf("Could not read %s history", target.Name)
		p.notifier.Error("History lookup failed", fmt.Sprintf("%s: %v", file.Stem, err))
		return
	}

	matched := false
	for _, record := range history {
		byHash := infoHash != "" && strings.EqualFold(record.TorrentInfoHash, infoHash)
		byTitle := strings.EqualFold(utils.CleanFileName(record.SourceTitle), file.Stem)
		if !byHash && !byTitle {
			continue
		}
		matched = true
		if err := target.FailHistoryItem(record.Id); err != nil {
			p.logger.Error().Err(err).Msgf("Could not fail history item %d", record.Id)
		}
	}
	if !matched {
		p.notifier.Error("No history match", fmt.Sprintf("%s has no matching grab in %s history", file.Stem, target.Name))
	}
}
