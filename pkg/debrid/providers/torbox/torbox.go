package torbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	gourl "net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/westsurname/blackhole/internal/config"
	"github.com/westsurname/blackhole/internal/logger"
	"github.com/westsurname/blackhole/internal/request"
	"github.com/westsurname/blackhole/internal/utils"
	"github.com/westsurname/blackhole/pkg/debrid/types"
)

// The provider reports qbittorrent-style download states. Anything not in
// either table is treated as downloading so unknown states keep polling.
var (
	inProgressStates = map[string]struct{}{
		"queued": {}, "metaDL": {}, "checking": {}, "checkingResumeData": {},
		"downloading": {}, "paused": {}, "pausedDL": {}, "completed": {},
		"uploading": {}, "uploading (no peers)": {}, "stalled": {},
		"processing": {}, "cached": {}, "repairing": {},
	}
	fatalStates = map[string]struct{}{
		"error": {}, "stalledUP": {}, "stalledDL": {}, "stalled (no seeds)": {},
		"missingFiles": {}, "failed": {},
	}
)

// The relay nudges the provider into re-announcing a freshly added torrent
// whose peers went quiet. Only young submissions qualify, and checks are
// throttled per torrent.
const (
	defaultRelayHost   = "https://relay.torbox.app/v1"
	inactiveCheckAge   = 5 * time.Minute
	inactiveCheckDelay = 5 * time.Second
)

type Torbox struct {
	name string
	Host string

	client          *request.Client
	mountPath       string
	failIfNotCached bool
	logger          zerolog.Logger

	relayHost string
	authId    string

	mu           sync.Mutex
	lastInactive map[string]time.Time
}

func New(dc config.Debrid, cfg *config.Config) *Torbox {
	rl := request.ParseRateLimit(dc.RateLimit)
	headers := map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", dc.APIKey),
	}
	_log := logger.New(dc.Name)

	return &Torbox{
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
		relayHost:       defaultRelayHost,
		lastInactive:    make(map[string]time.Time),
	}
}

func (tb *Torbox) Name() string {
	return tb.name
}

func (tb *Torbox) Logger() zerolog.Logger {
	return tb.logger
}

func (tb *Torbox) MountPath() string {
	return tb.mountPath
}

func (tb *Torbox) Validate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/stats", tb.Host), nil)
	if err != nil {
		return err
	}
	if _, err := tb.client.MakeRequest(req); err != nil {
		return fmt.Errorf("torbox unreachable: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/user/me", tb.Host), nil)
	if err != nil {
		return err
	}
	resp, err := tb.client.MakeRequest(req)
	if err != nil {
		return fmt.Errorf("torbox auth failed: %w", err)
	}
	var payload apiResponse
	if err := json.Unmarshal(resp, &payload); err == nil {
		var user struct {
			AuthId string `json:"auth_id"`
		}
		if err := json.Unmarshal(payload.Data, &user); err == nil {
			tb.authId = user.AuthId
		}
	}

	if !types.MountHealthy(tb.mountPath) {
		return fmt.Errorf("torbox mount %s is missing or holds no torrent folders", tb.mountPath)
	}
	return nil
}

type apiResponse struct {
	Success bool            `json:"success"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

// isCached checks the instant-availability endpoint. A missing or false data
// field means not cached.
func (tb *Torbox) isCached(ctx context.Context, infoHash string) (bool, error) {
	url := fmt.Sprintf("%s/torrents/checkcached?hash=%s&format=object", tb.Host, gourl.QueryEscape(infoHash))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := tb.client.MakeRequest(req)
	if err != nil {
		return false, err
	}
	var payload apiResponse
	if err := json.Unmarshal(resp, &payload); err != nil {
		return false, err
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(payload.Data, &entries); err != nil {
		return false, nil
	}
	for hash := range entries {
		if strings.EqualFold(hash, infoHash) {
			return true, nil
		}
	}
	return false, nil
}

type createdTorrent struct {
	TorrentId json.Number `json:"torrent_id"`
	Hash      string      `json:"hash"`
}

func (tb *Torbox) Submit(ctx context.Context, magnet *utils.Magnet) (*types.Torrent, error) {
	if tb.failIfNotCached && !magnet.IncompatibleHashSize() {
		cached, err := tb.isCached(ctx, magnet.InfoHash)
		if err != nil {
			return nil, err
		}
		if !cached {
			return nil, utils.NotCachedError
		}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if magnet.IsTorrent() {
		part, err := writer.CreateFormFile("file", magnet.Name+".torrent")
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(magnet.File); err != nil {
			return nil, err
		}
	} else {
		if err := writer.WriteField("magnet", magnet.Link); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/torrents/createtorrent", tb.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := tb.client.MakeRequest(req)
	if err != nil {
		return nil, err
	}
	var payload apiResponse
	if err := json.Unmarshal(resp, &payload); err != nil {
		return nil, err
	}
	if !payload.Success {
		return nil, fmt.Errorf("createtorrent failed: %s", payload.Detail)
	}
	// The provider queues uncached submissions for its own downloader. When
	// the user demanded cached content that queue is of no use, so back out.
	if tb.failIfNotCached && strings.Contains(strings.ToLower(payload.Detail), "queued") {
		return nil, utils.NotCachedError
	}
	var created createdTorrent
	if err := json.Unmarshal(payload.Data, &created); err != nil {
		return nil, err
	}
	if created.TorrentId.String() == "" {
		return nil, fmt.Errorf("no torrent id in response")
	}

	tb.logger.Info().Msgf("Submitted %s as %s", magnet.Name, created.TorrentId)
	return &types.Torrent{
		Id:       created.TorrentId.String(),
		InfoHash: magnet.InfoHash,
		Name:     magnet.Name,
		Debrid:   tb.name,
		Magnet:   magnet,
		Status:   types.StatusDownloading,
		AddedAt:  time.Now(),
	}, nil
}

type listedTorrent struct {
	Id               json.Number  `json:"id"`
	Name             string       `json:"name"`
	DownloadState    string       `json:"download_state"`
	DownloadFinished bool         `json:"download_finished"`
	Progress         float64      `json:"progress"`
	Files            []listedFile `json:"files"`
}

type listedFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// inactiveCheck asks the relay to kick stalled peers for a recent
// submission. Best effort; failures never affect the status poll.
func (tb *Torbox) inactiveCheck(ctx context.Context, t *types.Torrent) {
	if tb.authId == "" || t.AddedAt.IsZero() || time.Since(t.AddedAt) > inactiveCheckAge {
		return
	}
	tb.mu.Lock()
	if last, ok := tb.lastInactive[t.Id]; ok && time.Since(last) < inactiveCheckDelay {
		tb.mu.Unlock()
		return
	}
	tb.lastInactive[t.Id] = time.Now()
	tb.mu.Unlock()

	url := fmt.Sprintf("%s/inactivecheck/torrent/%s/%s", tb.relayHost, gourl.PathEscape(tb.authId), gourl.PathEscape(t.Id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}
	if _, err := tb.client.MakeRequest(req); err != nil {
		tb.logger.Debug().Err(err).Msgf("Inactive check failed for %s", t.Id)
	}
}

func (tb *Torbox) Info(ctx context.Context, t *types.Torrent) error {
	tb.inactiveCheck(ctx, t)

	url := fmt.Sprintf("%s/torrents/mylist?id=%s", tb.Host, gourl.QueryEscape(t.Id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := tb.client.MakeRequest(req)
	if err != nil {
		return err
	}
	var payload apiResponse
	if err := json.Unmarshal(resp, &payload); err != nil {
		return err
	}

	var data listedTorrent
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		// Some deployments return a single-element list for id queries.
		var list []listedTorrent
		if err := json.Unmarshal(payload.Data, &list); err != nil || len(list) == 0 {
			return utils.TorrentNotFoundError
		}
		data = list[0]
	}

	t.Filename = data.Name
	t.OriginalFilename = data.Name
	t.Progress = data.Progress * 100
	t.Files = t.Files[:0]
	for _, f := range data.Files {
		t.Files = append(t.Files, types.File{
			Name: f.Name,
			Path: f.Name,
			Size: f.Size,
		})
	}

	switch {
	case data.DownloadFinished:
		t.Status = types.StatusCompleted
	default:
		if _, fatal := fatalStates[data.DownloadState]; fatal {
			t.Status = types.StatusErrored
			break
		}
		if _, known := inProgressStates[data.DownloadState]; !known {
			tb.logger.Warn().Msgf("Unknown download state %q for %s, treating as downloading", data.DownloadState, t.Id)
		}
		t.Status = types.StatusDownloading
	}
	return nil
}

// SelectFiles is a no-op: the provider serves every file without an explicit
// selection step.
func (tb *Torbox) SelectFiles(ctx context.Context, t *types.Torrent, onlyLargest bool) error {
	return nil
}

func (tb *Torbox) ResolveMountDir(t *types.Torrent) (string, error) {
	if dir := t.FindMountDir(tb.mountPath); dir != "" {
		return dir, nil
	}
	return "", utils.MountNotFoundError
}

func (tb *Torbox) Delete(t *types.Torrent) error {
	form := gourl.Values{
		"torrent_id": {t.Id},
		"operation":  {"Delete"},
	}
	url := fmt.Sprintf("%s/torrents/controltorrent", tb.Host)
	req, err := http.NewRequest(http.MethodDelete, url, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if _, err := tb.client.MakeRequest(req); err != nil {
		return err
	}
	tb.mu.Lock()
	delete(tb.lastInactive, t.Id)
	tb.mu.Unlock()
	tb.logger.Debug().Msgf("Deleted torrent %s", t.Id)
	return nil
}
