package config

import (
	"testing"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BLACKHOLE_BASE_WATCH_PATH", "/data/blackhole")
	t.Setenv("BLACKHOLE_RADARR_PATH", "movies")
	t.Setenv("BLACKHOLE_SONARR_PATH", "series")
	t.Setenv("REALDEBRID_ENABLED", "true")
	t.Setenv("REALDEBRID_HOST", "https://api.real-debrid.com/rest/1.0")
	t.Setenv("REALDEBRID_API_KEY", "rd-key")
	t.Setenv("REALDEBRID_MOUNT_TORRENTS_PATH", "/mnt/rd/torrents")
	t.Setenv("RADARR_HOST", "http://radarr:7878")
	t.Setenv("RADARR_API_KEY", "radarr-key")
	t.Setenv("SONARR_HOST", "http://sonarr:8989")
	t.Setenv("SONARR_API_KEY", "sonarr-key")
}

func TestLoadAndValidate(t *testing.T) {
	setValidEnv(t)
	t.Setenv("BLACKHOLE_FAIL_IF_NOT_CACHED", "true")
	t.Setenv("BLACKHOLE_RD_MOUNT_REFRESH_SECONDS", "10")
	Reload()
	t.Cleanup(Reload)

	c := Get()
	if err := Validate(c); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !c.Blackhole.FailIfNotCached {
		t.Error("FailIfNotCached not read")
	}
	if c.Blackhole.RDMountRefreshSeconds != 10 {
		t.Errorf("RDMountRefreshSeconds = %d, want 10", c.Blackhole.RDMountRefreshSeconds)
	}
	// Unset values keep their defaults.
	if c.Blackhole.WaitForTorrentTimeout != 60 {
		t.Errorf("WaitForTorrentTimeout = %d, want default 60", c.Blackhole.WaitForTorrentTimeout)
	}
	if c.Blackhole.HistoryPageSize != 500 {
		t.Errorf("HistoryPageSize = %d, want default 500", c.Blackhole.HistoryPageSize)
	}
}

func TestDebrids_OrderAndGating(t *testing.T) {
	setValidEnv(t)
	t.Setenv("TORBOX_ENABLED", "true")
	t.Setenv("TORBOX_HOST", "https://api.torbox.app/v1/api")
	t.Setenv("TORBOX_API_KEY", "tb-key")
	t.Setenv("TORBOX_MOUNT_TORRENTS_PATH", "/mnt/tb/torrents")
	Reload()
	t.Cleanup(Reload)

	debrids := Get().Debrids()
	if len(debrids) != 2 {
		t.Fatalf("expected 2 debrids, got %d", len(debrids))
	}
	if debrids[0].Name != "realdebrid" || debrids[1].Name != "torbox" {
		t.Errorf("unexpected order: %s, %s", debrids[0].Name, debrids[1].Name)
	}
}

func TestValidate_RejectsMissingDebrid(t *testing.T) {
	setValidEnv(t)
	t.Setenv("REALDEBRID_ENABLED", "false")
	Reload()
	t.Cleanup(Reload)

	if err := Validate(Get()); err == nil {
		t.Error("no enabled debrid should fail validation")
	}
}

func TestValidate_RejectsMissingMountPath(t *testing.T) {
	setValidEnv(t)
	t.Setenv("REALDEBRID_MOUNT_TORRENTS_PATH", "")
	Reload()
	t.Cleanup(Reload)

	if err := Validate(Get()); err == nil {
		t.Error("missing mount path should fail validation")
	}
}

func TestWatchPath(t *testing.T) {
	setValidEnv(t)
	Reload()
	t.Cleanup(Reload)

	c := Get()
	if got := c.WatchPath("movies"); got != "/data/blackhole/movies" {
		t.Errorf("movies watch path = %q", got)
	}
	if got := c.WatchPath("series"); got != "/data/blackhole/series" {
		t.Errorf("series watch path = %q", got)
	}
	if got := c.WatchPath("sonarr"); got != "/data/blackhole/series" {
		t.Errorf("sonarr category should map to the series path, got %q", got)
	}
}

func TestIsAllowedFile(t *testing.T) {
	setValidEnv(t)
	Reload()
	t.Cleanup(Reload)

	c := Get()
	for _, name := range []string{"a.mkv", "b.MP4", "c.avi"} {
		if !c.IsAllowedFile(name) {
			t.Errorf("%s should be allowed", name)
		}
	}
	for _, name := range []string{"a.nfo", "b.txt", "c.exe", "noext"} {
		if c.IsAllowedFile(name) {
			t.Errorf("%s should not be allowed", name)
		}
	}
}
