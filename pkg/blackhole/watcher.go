package blackhole

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/westsurname/blackhole/internal/config"
	"github.com/westsurname/blackhole/internal/logger"
	"github.com/westsurname/blackhole/internal/utils"
	"github.com/westsurname/blackhole/pkg/arr"
)

// Watcher observes one watch root per manager and starts an ingest for every
// eligible file, including those already present at startup.
type Watcher struct {
	cfg       *config.Config
	processor *Processor
	logger    zerolog.Logger
}

func NewWatcher(cfg *config.Config, processor *Processor) *Watcher {
	return &Watcher{
		cfg:       cfg,
		processor: processor,
		logger:    logger.New("watcher"),
	}
}

// Start runs one loop per manager and blocks until the context is done.
func (w *Watcher) Start(ctx context.Context, targets map[string]*arr.Arr) error {
	for category, target := range targets {
		root := w.cfg.WatchPath(category)
		if err := w.prepare(root); err != nil {
			return err
		}
		go w.watch(ctx, root, target)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (w *Watcher) prepare(root string) error {
	for _, dir := range []string{root, filepath.Join(root, processingDirName), filepath.Join(root, completedDirName)} {
		if err := utils.EnsureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) watch(ctx context.Context, root string, target *arr.Arr) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error().Err(err).Msgf("Could not create watcher for %s", root)
		return
	}
	defer fsWatcher.Close()
	if err := fsWatcher.Add(root); err != nil {
		w.logger.Error().Err(err).Msgf("Could not watch %s", root)
		return
	}

	// Sweep after subscribing so files arriving in between are not missed.
	w.sweep(ctx, root, target)

	w.logger.Info().Msgf("Watching %s for %s", root, target.Name)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			w.maybeIngest(ctx, root, filepath.Base(event.Name), target)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msgf("Watcher error on %s", root)
		}
	}
}

func (w *Watcher) sweep(ctx context.Context, root string, target *arr.Arr) {
	entries, err := os.ReadDir(root)
	if err != nil {
		w.logger.Error().Err(err).Msgf("Could not enumerate %s", root)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.maybeIngest(ctx, root, entry.Name(), target)
	}
}

func (w *Watcher) maybeIngest(ctx context.Context, root, name string, target *arr.Arr) {
	if !EligibleFile(name) {
		return
	}
	info, err := os.Lstat(filepath.Join(root, name))
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	file := NewTorrentFile(root, name)
	w.logger.Info().Msgf("Ingesting %s for %s", name, target.Name)
	go w.processor.ProcessFile(ctx, file, target)
}
