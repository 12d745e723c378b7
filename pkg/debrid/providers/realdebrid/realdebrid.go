package realdebrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	gourl "net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/westsurname/blackhole/internal/config"
	"github.com/westsurname/blackhole/internal/logger"
	"github.com/westsurname/blackhole/internal/notifier"
	"github.com/westsurname/blackhole/internal/request"
	"github.com/westsurname/blackhole/internal/utils"
	"github.com/westsurname/blackhole/pkg/debrid/types"
)

// statuses maps provider torrent states onto the canonical set. Unknown
// states are treated as still downloading so new provider states do not
// break polling.
var statuses = map[string]types.TorrentStatus{
	"waiting_files_selection": types.StatusAwaitingFileSelection,
	"magnet_conversion":       types.StatusDownloading,
	"queued":                  types.StatusDownloading,
	"downloading":             types.StatusDownloading,
	"compressing":             types.StatusDownloading,
	"uploading":               types.StatusDownloading,
	"downloaded":              types.StatusCompleted,
	"magnet_error":            types.StatusErrored,
	"error":                   types.StatusErrored,
	"dead":                    types.StatusErrored,
	"virus":                   types.StatusErrored,
}

type RealDebrid struct {
	name string
	Host string

	client          *request.Client
	mountPath       string
	failIfNotCached bool
	logger          zerolog.Logger

	cfg      *config.Config
	notifier *notifier.Notifier
}

func New(dc config.Debrid, cfg *config.Config, note *notifier.Notifier) *RealDebrid {
	rl := request.ParseRateLimit(dc.RateLimit)
	headers := map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", dc.APIKey),
	}
	_log := logger.New(dc.Name)

	return &RealDebrid{
		name: dc.Name,
		Host: dc.Host,
		client: request.New(
			request.WithHeaders(headers),
			request.WithRateLimiter(rl),
			request.WithLogger(_log),
			request.WithRetryableStatus(429, 502),
		),
		mountPath:       dc.MountTorrentsPath,
		failIfNotCached: cfg.Blackhole.FailIfNotCached,
		logger:          _log,
		cfg:             cfg,
		notifier:        note,
	}
}

func (r *RealDebrid) Name() string {
	return r.name
}

func (r *RealDebrid) Logger() zerolog.Logger {
	return r.logger
}

func (r *RealDebrid) MountPath() string {
	return r.mountPath
}

// Validate probes the unauthenticated time endpoint first to separate
// connectivity problems from credential problems.
func (r *RealDebrid) Validate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/time", r.Host), nil)
	if err != nil {
		return err
	}
	if _, err := r.client.MakeRequest(req); err != nil {
		return fmt.Errorf("realdebrid unreachable: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/user", r.Host), nil)
	if err != nil {
		return err
	}
	if _, err := r.client.MakeRequest(req); err != nil {
		return fmt.Errorf("realdebrid auth failed: %w", err)
	}

	if !types.MountHealthy(r.mountPath) {
		return fmt.Errorf("realdebrid mount %s is missing or holds no torrent folders", r.mountPath)
	}
	return nil
}

type availableHost struct {
	Host string `json:"host"`
}

func (r *RealDebrid) availableHost(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/torrents/availableHosts", r.Host), nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.MakeRequest(req)
	if err != nil {
		return "", err
	}
	var hosts []availableHost
	if err := json.Unmarshal(resp, &hosts); err != nil {
		return "", err
	}
	if len(hosts) == 0 {
		return "", fmt.Errorf("no available hosts")
	}
	return hosts[0].Host, nil
}

// instantAvailability reports whether the hash has any cached variant and
// returns the variants for later file-set verification. The endpoint returns
// an empty object for unknown hashes, so both parse failures and empty maps
// mean "not cached".
func (r *RealDebrid) instantAvailability(ctx context.Context, infoHash string) ([]map[string]fileVariant, error) {
	url := fmt.Sprintf("%s/torrents/instantAvailability/%s", r.Host, infoHash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.MakeRequest(req)
	if err != nil {
		return nil, err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(resp, &payload); err != nil {
		return nil, err
	}
	for hash, raw := range payload {
		if !strings.EqualFold(hash, infoHash) {
			continue
		}
		var entry struct {
			Rd []map[string]fileVariant `json:"rd"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			// Unknown hashes come back as an empty array instead of an
			// object; treat that as not cached.
			return nil, nil
		}
		return entry.Rd, nil
	}
	return nil, nil
}

type fileVariant struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

type addedTorrent struct {
	Id string `json:"id"`
}

func (r *RealDebrid) Submit(ctx context.Context, magnet *utils.Magnet) (*types.Torrent, error) {
	if r.failIfNotCached && !magnet.IncompatibleHashSize() {
		variants, err := r.instantAvailability(ctx, magnet.InfoHash)
		if err != nil {
			return nil, err
		}
		if len(variants) == 0 {
			return nil, utils.NotCachedError
		}
	}

	host, err := r.availableHost(ctx)
	if err != nil {
		return nil, err
	}

	var req *http.Request
	if magnet.IsTorrent() {
		url := fmt.Sprintf("%s/torrents/addTorrent?host=%s", r.Host, gourl.QueryEscape(host))
		req, err = http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(magnet.File))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-bittorrent")
	} else {
		url := fmt.Sprintf("%s/torrents/addMagnet?host=%s", r.Host, gourl.QueryEscape(host))
		form := gourl.Values{"magnet": {magnet.Link}}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := r.client.MakeRequest(req)
	if err != nil {
		return nil, err
	}
	var added addedTorrent
	if err := json.Unmarshal(resp, &added); err != nil {
		return nil, err
	}
	if added.Id == "" {
		return nil, fmt.Errorf("no torrent id in response")
	}

	r.logger.Info().Msgf("Submitted %s as %s", magnet.Name, added.Id)
	return &types.Torrent{
		Id:       added.Id,
		InfoHash: magnet.InfoHash,
		Name:     magnet.Name,
		Debrid:   r.name,
		Magnet:   magnet,
		Status:   types.StatusDownloading,
	}, nil
}

type torrentInfo struct {
	Id               string     `json:"id"`
	Filename         string     `json:"filename"`
	OriginalFilename string     `json:"original_filename"`
	Hash             string     `json:"hash"`
	Status           string     `json:"status"`
	Progress         float64    `json:"progress"`
	Files            []infoFile `json:"files"`
}

type infoFile struct {
	Id       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

func (r *RealDebrid) getInfo(ctx context.Context, id string) (*torrentInfo, error) {
	url := fmt.Sprintf("%s/torrents/info/%s", r.Host, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.MakeRequest(req)
	if err != nil {
		return nil, err
	}
	var data torrentInfo
	if err := json.Unmarshal(resp, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (r *RealDebrid) Info(ctx context.Context, t *types.Torrent) error {
	data, err := r.getInfo(ctx, t.Id)
	if err != nil {
		return err
	}

	status, ok := statuses[data.Status]
	if !ok {
		r.logger.Warn().Msgf("Unknown status %q for %s, treating as downloading", data.Status, t.Id)
		status = types.StatusDownloading
	}

	t.Filename = data.Filename
	t.OriginalFilename = data.OriginalFilename
	t.Status = status
	t.Progress = data.Progress
	t.Files = t.Files[:0]
	for _, f := range data.Files {
		t.Files = append(t.Files, types.File{
			Id:   strconv.Itoa(f.Id),
			Name: filepath.Base(f.Path),
			Path: f.Path,
			Size: f.Bytes,
		})
	}
	return nil
}

// SelectFiles picks the largest media file, or all media files, and posts
// the selection. With failIfNotCached set, the chosen set must also appear
// complete in at least one cached variant; a partial cache counts as not
// cached so the caller can fall back.
func (r *RealDebrid) SelectFiles(ctx context.Context, t *types.Torrent, onlyLargest bool) error {
	data, err := r.getInfo(ctx, t.Id)
	if err != nil {
		return err
	}

	mediaFiles := make([]infoFile, 0, len(data.Files))
	for _, f := range data.Files {
		if r.cfg.IsAllowedFile(filepath.Base(f.Path)) {
			mediaFiles = append(mediaFiles, f)
		}
	}
	if len(mediaFiles) == 0 {
		return utils.NoVideoFilesError
	}

	selected := mediaFiles
	if onlyLargest {
		largest := mediaFiles[0]
		for _, f := range mediaFiles[1:] {
			if f.Bytes > largest.Bytes {
				largest = f
			}
		}
		selected = []infoFile{largest}
		if len(mediaFiles) > 1 {
			r.notifier.Update("Largest file selected", largest.Path)
		}
	}

	if r.failIfNotCached && !t.Magnet.IncompatibleHashSize() {
		variants, err := r.instantAvailability(ctx, t.InfoHash)
		if err != nil {
			return err
		}
		if !variantContains(variants, selected) {
			return utils.NotCachedError
		}
	}

	ids := make([]string, 0, len(selected))
	for _, f := range selected {
		ids = append(ids, strconv.Itoa(f.Id))
	}
	url := fmt.Sprintf("%s/torrents/selectFiles/%s", r.Host, t.Id)
	form := gourl.Values{"files": {strings.Join(ids, ",")}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if _, err := r.client.MakeRequest(req); err != nil {
		return err
	}
	r.logger.Debug().Msgf("Selected %d file(s) for %s", len(ids), t.Id)
	return nil
}

// variantContains reports whether some cached variant holds every selected
// file id.
func variantContains(variants []map[string]fileVariant, selected []infoFile) bool {
	for _, variant := range variants {
		all := true
		for _, f := range selected {
			if _, ok := variant[strconv.Itoa(f.Id)]; !ok {
				all = false
				break
			}
		}
		if all && len(variant) > 0 {
			return true
		}
	}
	return false
}

func (r *RealDebrid) ResolveMountDir(t *types.Torrent) (string, error) {
	if dir := t.FindMountDir(r.mountPath); dir != "" {
		return dir, nil
	}
	return "", utils.MountNotFoundError
}

func (r *RealDebrid) Delete(t *types.Torrent) error {
	url := fmt.Sprintf("%s/torrents/delete/%s", r.Host, t.Id)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	if _, err := r.client.MakeRequest(req); err != nil {
		return err
	}
	r.logger.Debug().Msgf("Deleted torrent %s", t.Id)
	return nil
}
