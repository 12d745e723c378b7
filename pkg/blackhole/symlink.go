package blackhole

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/westsurname/blackhole/internal/utils"
)

// Multi-season packs name either whole seasons ("Season 1 3") or season
// spans ("S01.S02"). Each pattern captures its boundary characters so the
// digit groups can be rewritten in place; RE2 has no lookaround.
var (
	multiSeason1  = regexp.MustCompile(`([\W_][Ss]eason[\W_])\d[\W_]\d{1,2}([\W_])`)
	multiSeason2  = regexp.MustCompile(`([\W_][Ss])(\d{2})([\W_][Ss]?)(\d{2})([\W_])`)
	episodeSeason = regexp.MustCompile(`S(\d{2})E\d{2}`)

	// A span continuation like "E01-02" marks a multi-episode file.
	multiEpisodeTail = regexp.MustCompile(`^[\W_]\d{2}[\W_]`)
)

func isMultiSeason(stem string) bool {
	return multiSeason1.MatchString(stem) || multiSeason2.MatchString(stem)
}

// isSingleEpisode reports whether the filename names exactly one episode:
// some SxxEyy occurrence not continued by a further episode number.
func isSingleEpisode(filename string) bool {
	for _, loc := range episodeSeason.FindAllStringIndex(filename, -1) {
		if !multiEpisodeTail.MatchString(filename[loc[1]:]) {
			return true
		}
	}
	return false
}

// seasonCompletedDir rewrites the completed directory's base name so that
// every season-number group names the given season, e.g.
// "Show.S01.S02.1080p" becomes "Show.S03.S03.1080p" for season "03".
func seasonCompletedDir(completedDir, season string) string {
	seasonShort := strings.TrimPrefix(season, "0")
	stem := filepath.Base(completedDir)
	stem = multiSeason1.ReplaceAllString(stem, "${1}"+seasonShort+"${2}")
	stem = multiSeason2.ReplaceAllString(stem, "${1}"+season+"${3}"+season+"${5}")
	return filepath.Join(filepath.Dir(completedDir), stem)
}

// materialize links every file under mountDir into the completed tree. For
// multi-season packs, episode files are routed into a per-season completed
// directory derived from their SxxEyy season number. Existing symlinks are
// replaced, so replays and parallel provider races converge on the same
// tree.
func materialize(mountDir string, file TorrentFile, log zerolog.Logger) error {
	multiSeason := isMultiSeason(file.Stem)
	linked := 0

	err := filepath.WalkDir(mountDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(mountDir, path)
		if err != nil {
			return err
		}

		completedDir := file.CompletedDir
		if multiSeason {
			if m := episodeSeason.FindStringSubmatch(d.Name()); m != nil {
				completedDir = seasonCompletedDir(file.CompletedDir, m[1])
			}
		}
		target := filepath.Join(completedDir, rel)
		if err := utils.Symlink(path, target); err != nil {
			return err
		}
		log.Debug().Msgf("Linked %s -> %s", target, path)
		linked++
		return nil
	})
	if err != nil {
		return err
	}
	if linked == 0 {
		log.Warn().Msgf("No files found under %s", mountDir)
	} else {
		log.Info().Msgf("Created %d symlink(s) for %s", linked, file.Stem)
	}
	return nil
}
