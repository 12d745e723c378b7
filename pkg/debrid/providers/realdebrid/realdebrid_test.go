package realdebrid

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/westsurname/blackhole/internal/config"
	"github.com/westsurname/blackhole/internal/notifier"
	"github.com/westsurname/blackhole/internal/utils"
	"github.com/westsurname/blackhole/pkg/debrid/types"
)

const testHash = "8a19577fb5f690970ca43a57ff1011ae202244b8"

func newTestClient(t *testing.T, failIfNotCached bool, handler http.HandlerFunc) *RealDebrid {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := &config.Config{
		Blackhole:  config.Blackhole{FailIfNotCached: failIfNotCached},
		AllowedExt: []string{".mkv", ".mp4"},
	}
	return New(config.Debrid{
		Name:              "realdebrid",
		Host:              server.URL,
		APIKey:            "token",
		MountTorrentsPath: t.TempDir(),
	}, cfg, notifier.New(cfg))
}

// newCaptureNotifier returns an enabled notifier whose webhook deliveries are
// recorded as "title: description" strings.
func newCaptureNotifier(t *testing.T) (*notifier.Notifier, *[]string) {
	t.Helper()
	var sent []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var payload struct {
			Embeds []struct {
				Title       string `json:"title"`
				Description string `json:"description"`
			} `json:"embeds"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Errorf("bad webhook payload: %v", err)
		}
		for _, e := range payload.Embeds {
			sent = append(sent, e.Title+": "+e.Description)
		}
	}))
	t.Cleanup(server.Close)
	cfg := &config.Config{Discord: config.Discord{
		Enabled:       true,
		UpdateEnabled: true,
		WebhookURL:    server.URL,
	}}
	return notifier.New(cfg), &sent
}

func TestSubmit_NotCached(t *testing.T) {
	r := newTestClient(t, true, func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/torrents/instantAvailability/" + testHash:
			io.WriteString(w, `{"`+testHash+`": []}`)
		default:
			t.Errorf("unexpected call to %s", req.URL.Path)
		}
	})

	magnet := &utils.Magnet{InfoHash: testHash, Link: "magnet:?xt=urn:btih:" + testHash}
	_, err := r.Submit(context.Background(), magnet)
	if !errors.Is(err, utils.NotCachedError) {
		t.Fatalf("expected NotCachedError, got %v", err)
	}
}

func TestSubmit_CachedMagnet(t *testing.T) {
	var addedMagnet string
	r := newTestClient(t, true, func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/torrents/instantAvailability/" + testHash:
			io.WriteString(w, `{"`+testHash+`": {"rd": [{"1": {"filename": "a.mkv", "filesize": 100}}]}}`)
		case "/torrents/availableHosts":
			io.WriteString(w, `[{"host": "real-debrid.com"}]`)
		case "/torrents/addMagnet":
			req.ParseForm()
			addedMagnet = req.PostForm.Get("magnet")
			if req.URL.Query().Get("host") != "real-debrid.com" {
				t.Errorf("missing host param")
			}
			io.WriteString(w, `{"id": "RDID1"}`)
		default:
			t.Errorf("unexpected call to %s", req.URL.Path)
		}
	})

	magnet := &utils.Magnet{Name: "The.Movie", InfoHash: testHash, Link: "magnet:?xt=urn:btih:" + testHash}
	torrent, err := r.Submit(context.Background(), magnet)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if torrent.Id != "RDID1" || torrent.InfoHash != testHash {
		t.Errorf("unexpected torrent: %+v", torrent)
	}
	if addedMagnet != magnet.Link {
		t.Errorf("magnet link not forwarded: %q", addedMagnet)
	}
}

func TestSubmit_TorrentBytesUsePut(t *testing.T) {
	var method string
	var body []byte
	r := newTestClient(t, false, func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/torrents/availableHosts":
			io.WriteString(w, `[{"host": "real-debrid.com"}]`)
		case "/torrents/addTorrent":
			method = req.Method
			body, _ = io.ReadAll(req.Body)
			io.WriteString(w, `{"id": "RDID2"}`)
		default:
			t.Errorf("unexpected call to %s", req.URL.Path)
		}
	})

	raw := []byte("d4:infod4:name1:xee")
	magnet := &utils.Magnet{Name: "x", InfoHash: testHash, File: raw}
	if _, err := r.Submit(context.Background(), magnet); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if method != http.MethodPut {
		t.Errorf("expected PUT, got %s", method)
	}
	if string(body) != string(raw) {
		t.Error("torrent bytes not sent verbatim")
	}
}

func TestInfo_StatusMapping(t *testing.T) {
	tests := []struct {
		provider string
		expect   types.TorrentStatus
	}{
		{"waiting_files_selection", types.StatusAwaitingFileSelection},
		{"magnet_conversion", types.StatusDownloading},
		{"queued", types.StatusDownloading},
		{"compressing", types.StatusDownloading},
		{"downloaded", types.StatusCompleted},
		{"magnet_error", types.StatusErrored},
		{"virus", types.StatusErrored},
		{"some_future_state", types.StatusDownloading},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			r := newTestClient(t, false, func(w http.ResponseWriter, req *http.Request) {
				io.WriteString(w, `{"id": "X", "filename": "f", "original_filename": "f.mkv", "status": "`+tt.provider+`", "progress": 10, "files": []}`)
			})
			torrent := &types.Torrent{Id: "X"}
			if err := r.Info(context.Background(), torrent); err != nil {
				t.Fatalf("Info failed: %v", err)
			}
			if torrent.Status != tt.expect {
				t.Errorf("status %q mapped to %q, want %q", tt.provider, torrent.Status, tt.expect)
			}
		})
	}
}

func TestSelectFiles_OnlyLargest(t *testing.T) {
	var selected string
	r := newTestClient(t, false, func(w http.ResponseWriter, req *http.Request) {
		switch {
		case req.URL.Path == "/torrents/info/X":
			io.WriteString(w, `{"id": "X", "status": "waiting_files_selection", "files": [
				{"id": 1, "path": "/a/small.mkv", "bytes": 100},
				{"id": 2, "path": "/a/large.mkv", "bytes": 900},
				{"id": 3, "path": "/a/info.nfo", "bytes": 9999}
			]}`)
		case req.URL.Path == "/torrents/selectFiles/X":
			req.ParseForm()
			selected = req.PostForm.Get("files")
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected call to %s", req.URL.Path)
		}
	})

	torrent := &types.Torrent{Id: "X", InfoHash: testHash, Magnet: &utils.Magnet{InfoHash: testHash}}
	if err := r.SelectFiles(context.Background(), torrent, true); err != nil {
		t.Fatalf("SelectFiles failed: %v", err)
	}
	// The .nfo is bigger but not a media file.
	if selected != "2" {
		t.Errorf("expected file 2 selected, got %q", selected)
	}
}

func TestSelectFiles_LargestFileNoticeSent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch {
		case req.URL.Path == "/torrents/info/X":
			io.WriteString(w, `{"id": "X", "status": "waiting_files_selection", "files": [
				{"id": 1, "path": "/a/small.mkv", "bytes": 100},
				{"id": 2, "path": "/a/large.mkv", "bytes": 900}
			]}`)
		case req.URL.Path == "/torrents/selectFiles/X":
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(server.Close)

	note, sent := newCaptureNotifier(t)
	cfg := &config.Config{AllowedExt: []string{".mkv"}}
	r := New(config.Debrid{
		Name:              "realdebrid",
		Host:              server.URL,
		APIKey:            "token",
		MountTorrentsPath: t.TempDir(),
	}, cfg, note)

	torrent := &types.Torrent{Id: "X", InfoHash: testHash, Magnet: &utils.Magnet{InfoHash: testHash}}
	if err := r.SelectFiles(context.Background(), torrent, true); err != nil {
		t.Fatalf("SelectFiles failed: %v", err)
	}
	if len(*sent) != 1 || (*sent)[0] != "Largest file selected: /a/large.mkv" {
		t.Errorf("unexpected notifications: %v", *sent)
	}
}

func TestValidate_ProbesMount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/time", "/user":
			io.WriteString(w, `{}`)
		default:
			t.Errorf("unexpected call to %s", req.URL.Path)
		}
	}))
	t.Cleanup(server.Close)

	mount := t.TempDir()
	cfg := &config.Config{}
	r := New(config.Debrid{
		Name:              "realdebrid",
		Host:              server.URL,
		APIKey:            "token",
		MountTorrentsPath: mount,
	}, cfg, notifier.New(cfg))

	// A mount with no torrent folders is not usable yet.
	if err := r.Validate(context.Background()); err == nil {
		t.Fatal("expected error for a mount without torrent folders")
	}
	if err := os.Mkdir(filepath.Join(mount, "Some.Torrent"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := r.Validate(context.Background()); err != nil {
		t.Fatalf("Validate failed with a populated mount: %v", err)
	}
}

func TestSelectFiles_AllMedia(t *testing.T) {
	var selected string
	r := newTestClient(t, false, func(w http.ResponseWriter, req *http.Request) {
		switch {
		case req.URL.Path == "/torrents/info/X":
			io.WriteString(w, `{"id": "X", "status": "waiting_files_selection", "files": [
				{"id": 1, "path": "/a/e1.mkv", "bytes": 100},
				{"id": 2, "path": "/a/e2.mkv", "bytes": 200}
			]}`)
		case req.URL.Path == "/torrents/selectFiles/X":
			req.ParseForm()
			selected = req.PostForm.Get("files")
			w.WriteHeader(http.StatusNoContent)
		}
	})

	torrent := &types.Torrent{Id: "X", InfoHash: testHash, Magnet: &utils.Magnet{InfoHash: testHash}}
	if err := r.SelectFiles(context.Background(), torrent, false); err != nil {
		t.Fatalf("SelectFiles failed: %v", err)
	}
	if selected != "1,2" {
		t.Errorf("expected files 1,2 selected, got %q", selected)
	}
}

func TestSelectFiles_NoMediaFiles(t *testing.T) {
	r := newTestClient(t, false, func(w http.ResponseWriter, req *http.Request) {
		io.WriteString(w, `{"id": "X", "status": "waiting_files_selection", "files": [
			{"id": 1, "path": "/a/readme.txt", "bytes": 10}
		]}`)
	})
	torrent := &types.Torrent{Id: "X", InfoHash: testHash, Magnet: &utils.Magnet{InfoHash: testHash}}
	err := r.SelectFiles(context.Background(), torrent, true)
	if !errors.Is(err, utils.NoVideoFilesError) {
		t.Fatalf("expected NoVideoFilesError, got %v", err)
	}
}

func TestSelectFiles_CachedVariantMissingFile(t *testing.T) {
	r := newTestClient(t, true, func(w http.ResponseWriter, req *http.Request) {
		switch {
		case req.URL.Path == "/torrents/info/X":
			io.WriteString(w, `{"id": "X", "status": "waiting_files_selection", "files": [
				{"id": 1, "path": "/a/e1.mkv", "bytes": 100},
				{"id": 2, "path": "/a/e2.mkv", "bytes": 200}
			]}`)
		case req.URL.Path == "/torrents/instantAvailability/"+testHash:
			// Only file 1 is cached; the selection of both must fail.
			io.WriteString(w, `{"`+testHash+`": {"rd": [{"1": {"filename": "e1.mkv", "filesize": 100}}]}}`)
		}
	})
	torrent := &types.Torrent{Id: "X", InfoHash: testHash, Magnet: &utils.Magnet{InfoHash: testHash}}
	err := r.SelectFiles(context.Background(), torrent, false)
	if !errors.Is(err, utils.NotCachedError) {
		t.Fatalf("expected NotCachedError, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	var method, path string
	r := newTestClient(t, false, func(w http.ResponseWriter, req *http.Request) {
		method = req.Method
		path = req.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})
	if err := r.Delete(&types.Torrent{Id: "X"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if method != http.MethodDelete || path != "/torrents/delete/X" {
		t.Errorf("unexpected request %s %s", method, path)
	}
}
