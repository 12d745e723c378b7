package testutil

import (
	"crypto/sha1"
	"encoding/hex"
	"testing"

	"github.com/anacrolix/torrent/bencode"
)

// BuildTorrent returns deterministic single-file .torrent bytes for the given
// name together with the SHA-1 hex digest of the bencoded info dictionary.
// Bencoded maps serialize with sorted keys, so the digest is stable.
func BuildTorrent(t *testing.T, name string) ([]byte, string) {
	t.Helper()

	info := map[string]interface{}{
		"name":         name,
		"piece length": 16384,
		"pieces":       string(make([]byte, 20)),
		"length":       16384,
	}
	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		t.Fatalf("Failed to bencode info dict: %v", err)
	}
	meta := map[string]interface{}{
		"announce": "http://tracker.invalid/announce",
		"info":     info,
	}
	metaBytes, err := bencode.Marshal(meta)
	if err != nil {
		t.Fatalf("Failed to bencode metainfo: %v", err)
	}

	sum := sha1.Sum(infoBytes)
	return metaBytes, hex.EncodeToString(sum[:])
}

// MagnetLink builds a magnet URI for the given infohash and name.
func MagnetLink(infoHash, name string) string {
	return "magnet:?xt=urn:btih:" + infoHash + "&dn=" + name
}
