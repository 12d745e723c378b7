package blackhole

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestIsMultiSeason(t *testing.T) {
	tests := []struct {
		stem   string
		expect bool
	}{
		{"Show.Name.S01.S02.1080p", true},
		{"Show.Name.Season.1.3.1080p", true},
		{"Show.Name.S01.02.1080p", true},
		{"Show.Name.S01.1080p", false},
		{"Show.Name.S01E01.1080p", false},
		{"The.Movie.2020.1080p", false},
	}
	for _, tt := range tests {
		t.Run(tt.stem, func(t *testing.T) {
			if got := isMultiSeason(tt.stem); got != tt.expect {
				t.Errorf("isMultiSeason(%q) = %v, want %v", tt.stem, got, tt.expect)
			}
		})
	}
}

func TestIsSingleEpisode(t *testing.T) {
	tests := []struct {
		filename string
		expect   bool
	}{
		{"Show.S01E01.1080p.mkv.torrent", true},
		{"Show.S01E01-02.1080p.mkv.torrent", false},
		{"Show.S01.1080p.torrent", false},
		{"Show.S01E01.02.extra.S01E05.mkv", true},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := isSingleEpisode(tt.filename); got != tt.expect {
				t.Errorf("isSingleEpisode(%q) = %v, want %v", tt.filename, got, tt.expect)
			}
		})
	}
}

func TestSeasonCompletedDir(t *testing.T) {
	tests := []struct {
		name   string
		dir    string
		season string
		expect string
	}{
		{"span", "/c/Show.Name.S01.S02.1080p", "01", "/c/Show.Name.S01.S01.1080p"},
		{"span other season", "/c/Show.Name.S01.S02.1080p", "02", "/c/Show.Name.S02.S02.1080p"},
		{"season word", "/c/Show.Season.1.3.x264", "03", "/c/Show.Season.3.x264"},
		{"double digit", "/c/Show.Name.S09.S10.2160p", "10", "/c/Show.Name.S10.S10.2160p"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := seasonCompletedDir(tt.dir, tt.season); got != tt.expect {
				t.Errorf("seasonCompletedDir(%q, %q) = %q, want %q", tt.dir, tt.season, got, tt.expect)
			}
		})
	}
}

func writeMountFile(t *testing.T, mountDir, rel string) string {
	t.Helper()
	path := filepath.Join(mountDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func checkLink(t *testing.T, link, wantTarget string) {
	t.Helper()
	got, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("Readlink(%s) failed: %v", link, err)
	}
	if got != wantTarget {
		t.Errorf("%s points to %s, want %s", link, got, wantTarget)
	}
}

func TestMaterialize_SingleMovie(t *testing.T) {
	base := t.TempDir()
	mountDir := filepath.Join(base, "mount", "The.Movie.2020.1080p")
	source := writeMountFile(t, mountDir, "The.Movie.2020.1080p.mkv")

	watchRoot := filepath.Join(base, "movies")
	file := NewTorrentFile(watchRoot, "The.Movie.2020.1080p.torrent")

	if err := materialize(mountDir, file, zerolog.Nop()); err != nil {
		t.Fatalf("materialize failed: %v", err)
	}
	checkLink(t, filepath.Join(file.CompletedDir, "The.Movie.2020.1080p.mkv"), source)
}

func TestMaterialize_MultiSeasonPack(t *testing.T) {
	base := t.TempDir()
	mountDir := filepath.Join(base, "mount", "Show.Name.S01.S02.1080p")
	s1e1 := writeMountFile(t, mountDir, "Show.Name.S01E01.mkv")
	s1e2 := writeMountFile(t, mountDir, "Show.Name.S01E02.mkv")
	s2e1 := writeMountFile(t, mountDir, "Show.Name.S02E01.mkv")

	watchRoot := filepath.Join(base, "series")
	file := NewTorrentFile(watchRoot, "Show.Name.S01.S02.1080p.torrent")

	if err := materialize(mountDir, file, zerolog.Nop()); err != nil {
		t.Fatalf("materialize failed: %v", err)
	}

	completed := filepath.Join(watchRoot, "completed")
	checkLink(t, filepath.Join(completed, "Show.Name.S01.S01.1080p", "Show.Name.S01E01.mkv"), s1e1)
	checkLink(t, filepath.Join(completed, "Show.Name.S01.S01.1080p", "Show.Name.S01E02.mkv"), s1e2)
	checkLink(t, filepath.Join(completed, "Show.Name.S02.S02.1080p", "Show.Name.S02E01.mkv"), s2e1)

	// Exactly one completed directory per observed season.
	entries, err := os.ReadDir(completed)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 completed dirs, got %d", len(entries))
	}
}

func TestMaterialize_NestedAndReplayed(t *testing.T) {
	base := t.TempDir()
	mountDir := filepath.Join(base, "mount", "The.Movie.2020.1080p")
	source := writeMountFile(t, mountDir, filepath.Join("Subs", "english.srt"))

	watchRoot := filepath.Join(base, "movies")
	file := NewTorrentFile(watchRoot, "The.Movie.2020.1080p.torrent")

	for i := 0; i < 2; i++ {
		if err := materialize(mountDir, file, zerolog.Nop()); err != nil {
			t.Fatalf("materialize run %d failed: %v", i+1, err)
		}
	}
	// Replay replaces links instead of duplicating or failing.
	checkLink(t, filepath.Join(file.CompletedDir, "Subs", "english.srt"), source)
}
