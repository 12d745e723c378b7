package arr

import "encoding/json"

// Media wraps the manager's raw item document. The document is kept intact
// and written back on Put so fields this code never interprets survive the
// round trip. Accessors read from the document; mutators write into it.
type Media struct {
	kind Type
	doc  map[string]any
}

func NewMedia(kind Type, doc map[string]any) *Media {
	return &Media{kind: kind, doc: doc}
}

func docInt(doc map[string]any, key string) int64 {
	switch v := doc[key].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}

func docFloat(doc map[string]any, key string) float64 {
	if v, ok := doc[key].(float64); ok {
		return v
	}
	return 0
}

func docString(doc map[string]any, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func docBool(doc map[string]any, key string) bool {
	if v, ok := doc[key].(bool); ok {
		return v
	}
	return false
}

func (m *Media) Id() int64 {
	return docInt(m.doc, "id")
}

func (m *Media) Title() string {
	return docString(m.doc, "title")
}

func (m *Media) Path() string {
	return docString(m.doc, "path")
}

func (m *Media) Monitored() bool {
	return docBool(m.doc, "monitored")
}

func (m *Media) seasons() []map[string]any {
	raw, ok := m.doc["seasons"].([]any)
	if !ok {
		return nil
	}
	seasons := make([]map[string]any, 0, len(raw))
	for _, s := range raw {
		if season, ok := s.(map[string]any); ok {
			seasons = append(seasons, season)
		}
	}
	return seasons
}

// ChildIds returns season numbers for series and the item's own id for
// movies, so callers can treat both kinds uniformly.
func (m *Media) ChildIds() []int64 {
	if m.kind == Radarr {
		return []int64{m.Id()}
	}
	seasons := m.seasons()
	ids := make([]int64, 0, len(seasons))
	for _, s := range seasons {
		ids = append(ids, docInt(s, "seasonNumber"))
	}
	return ids
}

func (m *Media) ChildMonitored(childId int64) bool {
	if m.kind == Radarr {
		return m.Monitored()
	}
	for _, s := range m.seasons() {
		if docInt(s, "seasonNumber") == childId {
			return docBool(s, "monitored")
		}
	}
	return false
}

// ChildFullyAvailable reports whether every expected file of the child is
// present: hasFile for movies, 100 percent of episodes for seasons.
func (m *Media) ChildFullyAvailable(childId int64) bool {
	if m.kind == Radarr {
		return docBool(m.doc, "hasFile")
	}
	for _, s := range m.seasons() {
		if docInt(s, "seasonNumber") != childId {
			continue
		}
		stats, ok := s["statistics"].(map[string]any)
		if !ok {
			return false
		}
		return docFloat(stats, "percentOfEpisodes") >= 100
	}
	return false
}

// SetChildMonitored flips monitoring for one child in the underlying
// document. Movies toggle the item itself; series toggle the season entry.
func (m *Media) SetChildMonitored(childId int64, monitored bool) {
	if m.kind == Radarr {
		m.doc["monitored"] = monitored
		return
	}
	for _, s := range m.seasons() {
		if docInt(s, "seasonNumber") == childId {
			s["monitored"] = monitored
			return
		}
	}
}

// MediaFile is one file the manager tracks for an item. ParentChildId is the
// season number for series files and the movie id for movie files.
type MediaFile struct {
	Id            int64
	Path          string
	Size          int64
	ParentChildId int64
}

func newMediaFile(kind Type, doc map[string]any) MediaFile {
	f := MediaFile{
		Id:   docInt(doc, "id"),
		Path: docString(doc, "path"),
		Size: docInt(doc, "size"),
	}
	if kind == Sonarr {
		f.ParentChildId = docInt(doc, "seasonNumber")
	} else {
		f.ParentChildId = docInt(doc, "movieId")
	}
	return f
}

// HistoryRecord is one grab/import event. TorrentInfoHash and Reason live in
// the record's data payload; ParentChildId requires grandchild details on
// the history request for series.
type HistoryRecord struct {
	Id              int64
	EventType       string
	SourceTitle     string
	TorrentInfoHash string
	Reason          string
	ParentChildId   int64
	GrandparentId   int64
}

func newHistoryRecord(kind Type, doc map[string]any) HistoryRecord {
	r := HistoryRecord{
		Id:          docInt(doc, "id"),
		EventType:   docString(doc, "eventType"),
		SourceTitle: docString(doc, "sourceTitle"),
	}
	if data, ok := doc["data"].(map[string]any); ok {
		r.TorrentInfoHash = docString(data, "torrentInfoHash")
		r.Reason = docString(data, "reason")
	}
	if kind == Sonarr {
		r.GrandparentId = docInt(doc, "seriesId")
		if episode, ok := doc["episode"].(map[string]any); ok {
			r.ParentChildId = docInt(episode, "seasonNumber")
		}
	} else {
		r.GrandparentId = docInt(doc, "movieId")
		r.ParentChildId = docInt(doc, "movieId")
	}
	return r
}
