package utils

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

var (
	hexRegex  = regexp.MustCompile("^[0-9a-fA-F]{40}$")
	btihRegex = regexp.MustCompile(`xt=urn:btih:([^&]+)`)
)

// Magnet describes one grab artifact: either raw .torrent bytes or a magnet
// link, plus the infohash used for availability checks and history matching.
type Magnet struct {
	Name     string `json:"name"`
	InfoHash string `json:"infoHash"`
	Link     string `json:"link"`
	File     []byte `json:"-"`
}

func (m *Magnet) IsTorrent() bool {
	return m.File != nil
}

// IncompatibleHashSize reports whether the infohash is not a 40-char SHA-1
// hex digest. Instant-availability endpoints assume SHA-1, so such hashes
// cannot be proven cached.
func (m *Magnet) IncompatibleHashSize() bool {
	return !hexRegex.MatchString(m.InfoHash)
}

// GetMagnetFromFile reads a .torrent or .magnet file and derives the infohash.
// For torrents the hash is the SHA-1 of the bencoded info dictionary; for
// magnet links it is the raw BTIH from the xt=urn:btih: parameter.
func GetMagnetFromFile(file io.Reader, filePath string) (*Magnet, error) {
	var m *Magnet
	if strings.EqualFold(filepath.Ext(filePath), ".torrent") {
		torrentData, err := io.ReadAll(file)
		if err != nil {
			return nil, err
		}
		m, err = GetMagnetFromBytes(torrentData)
		if err != nil {
			return nil, err
		}
	} else {
		magnetLink := ReadMagnetFile(file)
		var err error
		m, err = GetMagnetInfo(magnetLink)
		if err != nil {
			return nil, err
		}
	}
	m.Name = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	return m, nil
}

func OpenMagnetFile(filePath string) (*Magnet, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return GetMagnetFromFile(f, filePath)
}

func GetMagnetFromBytes(torrentData []byte) (*Magnet, error) {
	mi, err := metainfo.Load(bytes.NewReader(torrentData))
	if err != nil {
		return nil, err
	}
	hash := mi.HashInfoBytes()
	infoHash := hash.HexString()
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, err
	}
	magnetMeta := mi.Magnet(&hash, &info)
	return &Magnet{
		InfoHash: infoHash,
		Name:     info.Name,
		Link:     magnetMeta.String(),
		File:     torrentData,
	}, nil
}

// ReadMagnetFile returns the first non-empty line of a .magnet file.
func ReadMagnetFile(file io.Reader) string {
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		content := strings.TrimSpace(scanner.Text())
		if content != "" {
			return content
		}
	}
	return ""
}

func GetMagnetInfo(magnetLink string) (*Magnet, error) {
	if magnetLink == "" {
		return nil, fmt.Errorf("empty magnet link")
	}
	infoHash := ExtractInfoHash(magnetLink)
	if infoHash == "" {
		return nil, fmt.Errorf("no infohash in magnet link")
	}
	return &Magnet{
		InfoHash: infoHash,
		Link:     magnetLink,
	}, nil
}

// ExtractInfoHash pulls the raw BTIH out of a magnet URI. The value is kept
// as-is; non-SHA1 encodings are surfaced via IncompatibleHashSize.
func ExtractInfoHash(magnetDesc string) string {
	matches := btihRegex.FindStringSubmatch(magnetDesc)
	if matches == nil {
		return ""
	}
	return matches[1]
}
