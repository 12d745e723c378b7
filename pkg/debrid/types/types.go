package types

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/westsurname/blackhole/internal/utils"
)

// TorrentStatus is the canonical status set every provider maps into.
type TorrentStatus string

const (
	StatusAwaitingFileSelection TorrentStatus = "awaitingFileSelection"
	StatusDownloading           TorrentStatus = "downloading"
	StatusCompleted             TorrentStatus = "completed"
	StatusErrored               TorrentStatus = "errored"
)

// Torrent tracks one submission at one provider. Id is the provider's opaque
// id; Filename and OriginalFilename feed mount discovery.
type Torrent struct {
	Id               string        `json:"id"`
	InfoHash         string        `json:"infoHash"`
	Name             string        `json:"name"`
	Filename         string        `json:"filename"`
	OriginalFilename string        `json:"originalFilename"`
	Status           TorrentStatus `json:"status"`
	Progress         float64       `json:"progress"`
	Files            []File        `json:"files"`
	Debrid           string        `json:"debrid"`

	Magnet  *utils.Magnet `json:"-"`
	AddedAt time.Time     `json:"-"`
}

type File struct {
	Id   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// FindMountDir returns the first existing, non-empty candidate directory for
// the torrent under the provider mount. Candidates, in order: the reported
// filename, the original filename, and the original filename minus a trailing
// .mkv or .mp4 (providers sometimes strip container extensions when naming
// the folder).
func (t *Torrent) FindMountDir(mountPath string) string {
	candidates := []string{t.Filename, t.OriginalFilename}
	lower := strings.ToLower(t.OriginalFilename)
	if strings.HasSuffix(lower, ".mkv") || strings.HasSuffix(lower, ".mp4") {
		candidates = append(candidates, t.OriginalFilename[:len(t.OriginalFilename)-4])
	}
	for _, name := range candidates {
		if name == "" {
			continue
		}
		dir := filepath.Join(mountPath, name)
		if utils.DirHasEntries(dir) {
			return dir
		}
	}
	return ""
}

// MountHealthy reports whether the mount root is usable: it exists and holds
// at least one torrent directory. A mount that only shows stray files is as
// dead as a missing one.
func MountHealthy(mountPath string) bool {
	if mountPath == "" {
		return false
	}
	entries, err := os.ReadDir(mountPath)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			return true
		}
	}
	return false
}
