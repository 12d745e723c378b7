package repair

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/westsurname/blackhole/internal/config"
	"github.com/westsurname/blackhole/internal/logger"
	"github.com/westsurname/blackhole/internal/notifier"
	"github.com/westsurname/blackhole/internal/utils"
	"github.com/westsurname/blackhole/pkg/arr"
	"github.com/westsurname/blackhole/pkg/debrid"
	"github.com/westsurname/blackhole/pkg/debrid/types"
)

const (
	ModeSymlink = "symlink"
	ModeFile    = "file"

	missingFromDisk = "MissingFromDisk"

	commandPollAttempts = 3
	commandPollDelay    = 30 * time.Second
)

type Options struct {
	Mode               string
	DryRun             bool
	NoConfirm          bool
	SeasonPacks        bool
	IncludeUnmonitored bool
	RepairInterval     string
	RunInterval        string
}

// item pairs a managed item with the manager that owns it.
type item struct {
	media  *arr.Media
	target *arr.Arr
}

// pendingPack records a fragmented season found without --season-packs, for
// the end-of-pass report.
type pendingPack struct {
	title   string
	childId int64
	folders []string
}

type Repair struct {
	cfg      *config.Config
	opts     Options
	arrs     []*arr.Arr
	clients  []debrid.Client
	notifier *notifier.Notifier
	logger   zerolog.Logger

	repairDelay time.Duration
	pending     []pendingPack
	foundBroken bool
}

func New(cfg *config.Config, opts Options, arrs []*arr.Arr, clients []debrid.Client, note *notifier.Notifier) (*Repair, error) {
	if opts.Mode != ModeSymlink && opts.Mode != ModeFile {
		return nil, fmt.Errorf("invalid repair mode: %s", opts.Mode)
	}
	delay, err := utils.ParseSmartInterval(opts.RepairInterval)
	if err != nil {
		return nil, err
	}
	return &Repair{
		cfg:         cfg,
		opts:        opts,
		arrs:        arrs,
		clients:     clients,
		notifier:    note,
		logger:      logger.New("repair"),
		repairDelay: delay,
	}, nil
}

// Run executes passes on the configured schedule. An empty run interval
// means one pass and return. The interval accepts the compact format, a cron
// expression, or a plain duration.
func (r *Repair) Run(ctx context.Context) error {
	if r.opts.RunInterval == "" {
		return r.RunOnce(ctx)
	}
	jobDef, err := utils.ConvertToJobDef(r.opts.RunInterval)
	if err != nil {
		return err
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	defer func() { _ = scheduler.Shutdown() }()

	_, err = scheduler.NewJob(
		jobDef,
		gocron.NewTask(func() {
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Repair pass failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}
	scheduler.Start()
	<-ctx.Done()
	return ctx.Err()
}

// RunOnce performs a single repair pass.
func (r *Repair) RunOnce(ctx context.Context) error {
	if name, bad := r.unhealthyMount(); bad {
		r.logger.Error().Msgf("%s mount unhealthy, aborting pass", name)
		r.notifier.Error("Repair aborted", fmt.Sprintf("%s mount failed the health probe", name))
		return nil
	}

	items, err := r.collectItems()
	if err != nil {
		return err
	}
	pass := uuid.New().String()
	r.logger.Info().Str("pass", pass).Msgf("Starting repair pass over %d item(s)", len(items))

	r.pending = r.pending[:0]
	r.foundBroken = false
	for _, it := range items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		// A mount can drop mid-pass; re-probe before each item so a dead
		// mount does not flag the whole remaining library as broken.
		if name, bad := r.unhealthyMount(); bad {
			r.logger.Error().Str("pass", pass).Msgf("%s mount unhealthy, aborting pass", name)
			r.notifier.Error("Repair aborted", fmt.Sprintf("%s mount failed the health probe mid-pass", name))
			return nil
		}
		if err := r.repairItem(ctx, it); err != nil {
			r.logger.Error().Err(err).Msgf("Repair failed for %s", it.media.Title())
		}
	}

	r.reportPending()
	msg := "Repair complete"
	if !r.foundBroken {
		msg += " with no broken items found"
	}
	r.logger.Info().Str("pass", pass).Msg(msg)
	r.notifier.Update(msg, "")
	return nil
}

// unhealthyMount probes every backend mount in symlink mode and names the
// first one that fails.
func (r *Repair) unhealthyMount() (string, bool) {
	if r.opts.Mode != ModeSymlink {
		return "", false
	}
	for _, client := range r.clients {
		if !types.MountHealthy(client.MountPath()) {
			return client.Name(), true
		}
	}
	return "", false
}

// collectItems interleaves the two managers' libraries so a pass makes
// balanced progress instead of finishing all movies before any show.
func (r *Repair) collectItems() ([]item, error) {
	lists := make([][]item, 0, len(r.arrs))
	for _, target := range r.arrs {
		media, err := target.GetAll()
		if err != nil {
			return nil, fmt.Errorf("listing %s items: %w", target.Name, err)
		}
		list := make([]item, 0, len(media))
		for _, m := range media {
			list = append(list, item{media: m, target: target})
		}
		lists = append(lists, list)
	}
	switch len(lists) {
	case 0:
		return nil, nil
	case 1:
		return lists[0], nil
	default:
		return utils.Intersperse(lists[0], lists[1]), nil
	}
}

func (r *Repair) repairItem(ctx context.Context, it item) error {
	for _, childId := range it.media.ChildIds() {
		if !r.opts.IncludeUnmonitored && !it.media.ChildMonitored(childId) {
			continue
		}
		var err error
		if r.opts.Mode == ModeSymlink {
			err = r.repairChildSymlinks(ctx, it, childId)
		} else {
			err = r.repairChildFiles(ctx, it, childId)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repair) repairChildSymlinks(ctx context.Context, it item, childId int64) error {
	files, err := it.target.ListFiles(it.media, childId)
	if err != nil {
		return err
	}

	broken := make([]arr.MediaFile, 0)
	parentDirs := make(map[string]struct{})
	for _, f := range files {
		target := resolveTarget(f.Path)
		if target == "" {
			continue
		}
		parentDirs[filepath.Dir(target)] = struct{}{}
		if brokenSymlink(f.Path, target, r.clients) {
			broken = append(broken, f)
		}
	}

	if len(broken) > 0 {
		r.logger.Info().Msgf("%s child %d has %d broken symlink(s)", it.media.Title(), childId, len(broken))
		r.foundBroken = true
		return r.repairChild(ctx, it, childId, files, len(broken))
	}

	// A fully available season scattered over several mount folders is a
	// candidate for a season-pack upgrade.
	if it.media.ChildFullyAvailable(childId) && len(parentDirs) > 1 {
		folders := make([]string, 0, len(parentDirs))
		for dir := range parentDirs {
			folders = append(folders, dir)
		}
		if r.opts.SeasonPacks {
			return r.searchSeasonPack(ctx, it, childId, len(folders))
		}
		r.pending = append(r.pending, pendingPack{title: it.media.Title(), childId: childId, folders: folders})
	}
	return nil
}

func (r *Repair) searchSeasonPack(ctx context.Context, it item, childId int64, folders int) error {
	r.logger.Info().Msgf("%s child %d is fragmented over %d folders", it.media.Title(), childId, folders)
	if r.opts.DryRun {
		r.logger.Info().Msgf("Dry run: would search for a season pack for %s child %d", it.media.Title(), childId)
		return nil
	}
	if !r.opts.NoConfirm && !confirm(fmt.Sprintf("Search for a season pack for %s child %d?", it.media.Title(), childId)) {
		r.logger.Info().Msgf("Skipping %s child %d", it.media.Title(), childId)
		return nil
	}
	if err := r.search(ctx, it, childId); err != nil {
		return err
	}
	return r.pause(ctx)
}

func (r *Repair) repairChildFiles(ctx context.Context, it item, childId int64) error {
	history, err := it.target.GetItemHistory(it.media, childId)
	if err != nil {
		return err
	}
	broken := 0
	for _, record := range history {
		if record.Reason != missingFromDisk {
			continue
		}
		if it.media.ChildFullyAvailable(record.ParentChildId) {
			continue
		}
		broken++
	}
	if broken == 0 {
		return nil
	}
	r.logger.Info().Msgf("%s child %d reported missing from disk", it.media.Title(), childId)
	r.foundBroken = true
	return r.repairChild(ctx, it, childId, nil, broken)
}

// repairChild drives the delete, re-monitor, re-search cycle for one child.
// Every file of the child is deleted, not just the broken ones, so the
// replacement search grabs one coherent release.
func (r *Repair) repairChild(ctx context.Context, it item, childId int64, files []arr.MediaFile, broken int) error {
	if r.opts.DryRun {
		r.logger.Info().Msgf("Dry run: would repair %s child %d", it.media.Title(), childId)
		return nil
	}
	if !r.opts.NoConfirm && !confirm(fmt.Sprintf("Repair %s child %d?", it.media.Title(), childId)) {
		r.logger.Info().Msgf("Skipping %s child %d", it.media.Title(), childId)
		return nil
	}
	r.notifier.Update(fmt.Sprintf("Repairing %s child %d", it.media.Title(), childId),
		fmt.Sprintf("Found %d broken item(s)", broken))

	if len(files) > 0 {
		if err := it.target.DeleteFiles(files); err != nil {
			return fmt.Errorf("deleting files: %w", err)
		}
	}

	// Toggling monitoring off and on forces the manager to recompute the
	// child's wanted set before the search runs.
	it.media.SetChildMonitored(childId, false)
	if err := it.target.Put(it.media); err != nil {
		return fmt.Errorf("unmonitoring: %w", err)
	}
	it.media.SetChildMonitored(childId, true)
	if err := it.target.Put(it.media); err != nil {
		return fmt.Errorf("remonitoring: %w", err)
	}

	if err := r.search(ctx, it, childId); err != nil {
		return err
	}
	return r.pause(ctx)
}

// pause spaces repairs out so a burst of searches does not hammer the
// indexers.
func (r *Repair) pause(ctx context.Context) error {
	if r.repairDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.repairDelay):
	}
	return nil
}

func (r *Repair) search(ctx context.Context, it item, childId int64) error {
	commandId, err := it.target.AutomaticSearch(it.media, childId)
	if err != nil {
		return fmt.Errorf("starting search: %w", err)
	}
	go r.confirmSearch(ctx, it, childId, commandId)
	return nil
}

// confirmSearch polls the search command until it settles or the attempts
// run out. A completed command that downloaded nothing is logged apart from
// a real success so operators can spot releases nobody has.
func (r *Repair) confirmSearch(ctx context.Context, it item, childId int64, commandId int64) {
	for attempt := 0; attempt < commandPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(commandPollDelay):
		}

		status, err := it.target.GetCommandStatus(commandId)
		if err != nil {
			r.logger.Warn().Err(err).Msgf("Could not poll search command %d", commandId)
			continue
		}
		switch status.Status {
		case "completed":
			if strings.Contains(status.Message, "0 reports downloaded.") {
				r.logger.Warn().Msgf("Search for %s child %d found nothing", it.media.Title(), childId)
			} else {
				r.logger.Info().Msgf("Search for %s child %d succeeded", it.media.Title(), childId)
			}
			return
		case "failed":
			r.logger.Error().Msgf("Search for %s child %d failed: %s", it.media.Title(), childId, status.Message)
			return
		}
	}
	r.logger.Warn().Msgf("Search command %d for %s child %d did not settle", commandId, it.media.Title(), childId)
}

func (r *Repair) reportPending() {
	if len(r.pending) == 0 {
		return
	}
	var b strings.Builder
	for _, p := range r.pending {
		fmt.Fprintf(&b, "%s season %d: %s\n", p.title, p.childId, strings.Join(p.folders, ", "))
	}
	r.logger.Info().Msgf("Fragmented seasons pending season-pack upgrade:\n%s", b.String())
	r.notifier.Update("Fragmented seasons", b.String())
}
