package arr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	gourl "net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/westsurname/blackhole/internal/config"
	"github.com/westsurname/blackhole/internal/logger"
	"github.com/westsurname/blackhole/internal/request"
)

// Type is a kind of content manager.
type Type string

const (
	Sonarr Type = "sonarr"
	Radarr Type = "radarr"
)

// variant holds the per-type API parameters. Sonarr and Radarr expose the
// same surface; only these values and the shape of children differ.
type variant struct {
	itemEndpoint   string
	fileEndpoint   string
	bulkIdsField   string
	itemIdParam    string
	childIdParam   string
	historyDetails string
	searchCommand  string
}

var variants = map[Type]variant{
	Sonarr: {
		itemEndpoint:   "series",
		fileEndpoint:   "episodefile",
		bulkIdsField:   "episodeFileIds",
		itemIdParam:    "seriesId",
		childIdParam:   "seasonNumber",
		historyDetails: "includeEpisodeDetails",
		searchCommand:  "SeasonSearch",
	},
	Radarr: {
		itemEndpoint:   "movie",
		fileEndpoint:   "moviefile",
		bulkIdsField:   "movieFileIds",
		itemIdParam:    "movieId",
		childIdParam:   "",
		historyDetails: "includeMovieDetails",
		searchCommand:  "MoviesSearch",
	},
}

type Arr struct {
	Name string
	Host string
	Type Type

	token   string
	variant variant
	client  *request.Client
	logger  zerolog.Logger
}

func New(t Type, cfg config.Arr) *Arr {
	name := string(t)
	return &Arr{
		Name:    name,
		Host:    cfg.Host,
		Type:    t,
		token:   cfg.APIKey,
		variant: variants[t],
		client: request.New(
			request.WithHeaders(map[string]string{"X-Api-Key": cfg.APIKey}),
			request.WithTimeout(60*time.Second),
		),
		logger: logger.New(name),
	}
}

func (a *Arr) request(method, endpoint string, query gourl.Values, payload any) ([]byte, error) {
	if a.Host == "" || a.token == "" {
		return nil, fmt.Errorf("%s not configured", a.Name)
	}
	url, err := request.JoinURL(a.Host, endpoint)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		url = url + "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.client.MakeRequest(req)
}

// GetAll lists every managed item.
func (a *Arr) GetAll() ([]*Media, error) {
	resp, err := a.request(http.MethodGet, "/api/v3/"+a.variant.itemEndpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	var docs []map[string]any
	if err := json.Unmarshal(resp, &docs); err != nil {
		return nil, err
	}
	media := make([]*Media, 0, len(docs))
	for _, doc := range docs {
		media = append(media, NewMedia(a.Type, doc))
	}
	return media, nil
}

func (a *Arr) Get(id int64) (*Media, error) {
	endpoint := fmt.Sprintf("/api/v3/%s/%d", a.variant.itemEndpoint, id)
	resp, err := a.request(http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(resp, &doc); err != nil {
		return nil, err
	}
	return NewMedia(a.Type, doc), nil
}

// Put writes the item back with moveFiles so path edits take effect.
func (a *Arr) Put(m *Media) error {
	endpoint := fmt.Sprintf("/api/v3/%s/%d", a.variant.itemEndpoint, m.Id())
	query := gourl.Values{"moveFiles": {"true"}}
	_, err := a.request(http.MethodPut, endpoint, query, m.doc)
	return err
}

// ListFiles returns the item's media files, optionally narrowed to one child.
// For movies the item is its own child, so no narrowing applies.
func (a *Arr) ListFiles(m *Media, childId int64) ([]MediaFile, error) {
	query := gourl.Values{a.variant.itemIdParam: {strconv.FormatInt(m.Id(), 10)}}
	resp, err := a.request(http.MethodGet, "/api/v3/"+a.variant.fileEndpoint, query, nil)
	if err != nil {
		return nil, err
	}
	var docs []map[string]any
	if err := json.Unmarshal(resp, &docs); err != nil {
		return nil, err
	}
	files := make([]MediaFile, 0, len(docs))
	for _, doc := range docs {
		f := newMediaFile(a.Type, doc)
		if a.Type == Sonarr && childId >= 0 && f.ParentChildId != childId {
			continue
		}
		files = append(files, f)
	}
	return files, nil
}

func (a *Arr) DeleteFiles(files []MediaFile) error {
	if len(files) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.Id)
	}
	payload := map[string]any{a.variant.bulkIdsField: ids}
	_, err := a.request(http.MethodDelete, "/api/v3/"+a.variant.fileEndpoint+"/bulk", nil, payload)
	return err
}

// GetHistory reads the most recent page of grab history, newest first.
func (a *Arr) GetHistory(pageSize int) ([]HistoryRecord, error) {
	query := gourl.Values{
		"pageSize": {strconv.Itoa(pageSize)},
		"page":     {"1"},
	}
	resp, err := a.request(http.MethodGet, "/api/v3/history", query, nil)
	if err != nil {
		return nil, err
	}
	var page struct {
		Records []map[string]any `json:"records"`
	}
	if err := json.Unmarshal(resp, &page); err != nil {
		return nil, err
	}
	records := make([]HistoryRecord, 0, len(page.Records))
	for _, doc := range page.Records {
		records = append(records, newHistoryRecord(a.Type, doc))
	}
	return records, nil
}

// GetItemHistory reads the item-scoped history with grandchild details, used
// by repair's file mode to spot MissingFromDisk records.
func (a *Arr) GetItemHistory(m *Media, childId int64) ([]HistoryRecord, error) {
	query := gourl.Values{
		a.variant.itemIdParam:    {strconv.FormatInt(m.Id(), 10)},
		a.variant.historyDetails: {"true"},
	}
	if a.Type == Sonarr && childId >= 0 {
		query.Set(a.variant.childIdParam, strconv.FormatInt(childId, 10))
	}
	resp, err := a.request(http.MethodGet, "/api/v3/history/"+a.variant.itemEndpoint, query, nil)
	if err != nil {
		return nil, err
	}
	var docs []map[string]any
	if err := json.Unmarshal(resp, &docs); err != nil {
		return nil, err
	}
	records := make([]HistoryRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, newHistoryRecord(a.Type, doc))
	}
	return records, nil
}

// FailHistoryItem marks a grab failed so the manager searches for another
// release.
func (a *Arr) FailHistoryItem(historyId int64) error {
	endpoint := fmt.Sprintf("/api/v3/history/failed/%d", historyId)
	_, err := a.request(http.MethodPost, endpoint, nil, map[string]any{})
	return err
}

// RefreshMonitoredDownloads asks the manager to rescan its download queue.
func (a *Arr) RefreshMonitoredDownloads() error {
	payload := map[string]any{"name": "RefreshMonitoredDownloads"}
	_, err := a.request(http.MethodPost, "/api/v3/command", nil, payload)
	return err
}

// AutomaticSearch starts a search for the item (movies) or one season
// (series) and returns the command id for status polling.
func (a *Arr) AutomaticSearch(m *Media, childId int64) (int64, error) {
	var payload map[string]any
	if a.Type == Sonarr {
		payload = map[string]any{
			"name":         a.variant.searchCommand,
			"seriesId":     m.Id(),
			"seasonNumber": childId,
		}
	} else {
		payload = map[string]any{
			"name":     a.variant.searchCommand,
			"movieIds": []int64{m.Id()},
		}
	}
	resp, err := a.request(http.MethodPost, "/api/v3/command", nil, payload)
	if err != nil {
		return 0, err
	}
	var command struct {
		Id int64 `json:"id"`
	}
	if err := json.Unmarshal(resp, &command); err != nil {
		return 0, err
	}
	return command.Id, nil
}

type CommandStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (a *Arr) GetCommandStatus(commandId int64) (*CommandStatus, error) {
	endpoint := fmt.Sprintf("/api/v3/command/%d", commandId)
	resp, err := a.request(http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	var status CommandStatus
	if err := json.Unmarshal(resp, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Validate checks connectivity and credentials.
func (a *Arr) Validate() error {
	if _, err := a.request(http.MethodGet, "/api/v3/health", nil, nil); err != nil {
		return fmt.Errorf("%s validation failed: %w", a.Name, err)
	}
	return nil
}
