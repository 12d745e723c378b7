package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/westsurname/blackhole/internal/testutil"
)

func checkMagnet(t *testing.T, magnet *Magnet, expectedInfoHash, expectedName string, shouldBeTorrent bool) {
	t.Helper()

	if magnet.Name != expectedName {
		t.Errorf("Expected name '%s', got '%s'", expectedName, magnet.Name)
	}
	if !strings.EqualFold(magnet.InfoHash, expectedInfoHash) {
		t.Errorf("Expected InfoHash '%s', got '%s'", expectedInfoHash, magnet.InfoHash)
	}
	if magnet.IsTorrent() != shouldBeTorrent {
		t.Errorf("Expected IsTorrent=%v, got %v", shouldBeTorrent, magnet.IsTorrent())
	}
	if !strings.Contains(strings.ToLower(magnet.Link), "xt=urn:btih:"+strings.ToLower(expectedInfoHash)) {
		t.Error("Magnet link should contain info hash")
	}
}

func TestGetMagnetFromBytes_HashStability(t *testing.T) {
	data, infoHash := testutil.BuildTorrent(t, "The.Movie.2020.1080p")

	magnet, err := GetMagnetFromBytes(data)
	if err != nil {
		t.Fatalf("GetMagnetFromBytes failed: %v", err)
	}
	checkMagnet(t, magnet, infoHash, "The.Movie.2020.1080p", true)

	// Same bytes, same hash.
	again, err := GetMagnetFromBytes(data)
	if err != nil {
		t.Fatalf("GetMagnetFromBytes failed on replay: %v", err)
	}
	if again.InfoHash != magnet.InfoHash {
		t.Errorf("Hash not stable: %s vs %s", again.InfoHash, magnet.InfoHash)
	}
}

func TestGetMagnetFromFile_TorrentFile(t *testing.T) {
	data, infoHash := testutil.BuildTorrent(t, "The.Movie.2020.1080p")
	path := filepath.Join(t.TempDir(), "The.Movie.2020.1080p.torrent")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write torrent file: %v", err)
	}

	magnet, err := OpenMagnetFile(path)
	if err != nil {
		t.Fatalf("OpenMagnetFile failed: %v", err)
	}
	// Name comes from the file stem, not the torrent metadata.
	checkMagnet(t, magnet, infoHash, "The.Movie.2020.1080p", true)
}

func TestGetMagnetFromFile_MagnetFile(t *testing.T) {
	infoHash := "8a19577fb5f690970ca43a57ff1011ae202244b8"
	link := testutil.MagnetLink(infoHash, "The.Show.S01")
	path := filepath.Join(t.TempDir(), "The.Show.S01.magnet")
	if err := os.WriteFile(path, []byte(link+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write magnet file: %v", err)
	}

	magnet, err := OpenMagnetFile(path)
	if err != nil {
		t.Fatalf("OpenMagnetFile failed: %v", err)
	}
	checkMagnet(t, magnet, infoHash, "The.Show.S01", false)
}

func TestExtractInfoHash(t *testing.T) {
	tests := []struct {
		name   string
		link   string
		expect string
	}{
		{"sha1 hex", "magnet:?xt=urn:btih:8a19577fb5f690970ca43a57ff1011ae202244b8&dn=x", "8a19577fb5f690970ca43a57ff1011ae202244b8"},
		{"base32 kept raw", "magnet:?xt=urn:btih:RJSVGUTFCQ5TGBSWKZDVONSXEIDP&dn=x", "RJSVGUTFCQ5TGBSWKZDVONSXEIDP"},
		{"no hash", "magnet:?dn=x", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractInfoHash(tt.link); got != tt.expect {
				t.Errorf("ExtractInfoHash(%q) = %q, want %q", tt.link, got, tt.expect)
			}
		})
	}
}

func TestIncompatibleHashSize(t *testing.T) {
	sha1Magnet := &Magnet{InfoHash: "8a19577fb5f690970ca43a57ff1011ae202244b8"}
	if sha1Magnet.IncompatibleHashSize() {
		t.Error("40-char hex hash should be compatible")
	}
	base32Magnet := &Magnet{InfoHash: "RJSVGUTFCQ5TGBSWKZDVONSXEIDP"}
	if !base32Magnet.IncompatibleHashSize() {
		t.Error("base32 hash should be incompatible")
	}
}

func TestReadMagnetFile_SkipsBlankLines(t *testing.T) {
	content := "\n\n  magnet:?xt=urn:btih:abc&dn=x  \n"
	got := ReadMagnetFile(strings.NewReader(content))
	if got != "magnet:?xt=urn:btih:abc&dn=x" {
		t.Errorf("ReadMagnetFile = %q", got)
	}
}
