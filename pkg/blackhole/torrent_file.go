package blackhole

import (
	"path/filepath"
	"strings"
)

const (
	processingDirName = "processing"
	completedDirName  = "completed"
)

// TorrentFile is one ingest unit and its three derived paths. The file lives
// at WatchPath until claimed, at ProcessingPath while in flight, and the
// symlink tree lands under CompletedDir.
type TorrentFile struct {
	Filename       string
	Stem           string
	IsTorrent      bool
	WatchPath      string
	ProcessingPath string
	CompletedDir   string
}

func NewTorrentFile(watchRoot, filename string) TorrentFile {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	return TorrentFile{
		Filename:       filename,
		Stem:           stem,
		IsTorrent:      strings.EqualFold(filepath.Ext(filename), ".torrent"),
		WatchPath:      filepath.Join(watchRoot, filename),
		ProcessingPath: filepath.Join(watchRoot, processingDirName, filename),
		CompletedDir:   filepath.Join(watchRoot, completedDirName, stem),
	}
}

// EligibleFile reports whether the name is an ingest candidate. The two
// bookkeeping directory names are reserved.
func EligibleFile(name string) bool {
	if name == processingDirName || name == completedDirName {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".torrent" || ext == ".magnet"
}
