package repair

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/westsurname/blackhole/pkg/debrid"
)

// resolveTarget returns the symlink target as an absolute path, or "" when
// the path is not a symlink.
func resolveTarget(path string) string {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return ""
	}
	target, err := os.Readlink(path)
	if err != nil {
		return ""
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return filepath.Clean(target)
}

// brokenSymlink reports whether the link at path points into a known mount
// and its content is gone. RealDebrid folders disappear from the mount
// itself, so the target path is checked directly. The Torbox mount serves
// through a path rewrite, so the link target can keep existing while the
// content is gone; resolving the link from the outside catches that.
func brokenSymlink(path, target string, clients []debrid.Client) bool {
	for _, client := range clients {
		mount := client.MountPath()
		if mount == "" || !strings.HasPrefix(target, mount) {
			continue
		}
		if client.Name() == "torbox" {
			if _, err := filepath.EvalSymlinks(path); err != nil {
				return true
			}
			continue
		}
		if _, err := os.Stat(target); err != nil {
			return true
		}
	}
	return false
}

// confirm asks on stdin before a destructive step. Returns true on "y".
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}
