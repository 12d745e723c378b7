package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/westsurname/blackhole/internal/utils"
)

var (
	instance *Config
	once     sync.Once
)

type Blackhole struct {
	BaseWatchPath         string
	RadarrPath            string
	SonarrPath            string
	FailIfNotCached       bool
	RDMountRefreshSeconds int
	WaitForTorrentTimeout int
	HistoryPageSize       int
}

type Debrid struct {
	Name              string
	Enabled           bool
	Host              string
	APIKey            string
	MountTorrentsPath string
	RateLimit         string
}

type Arr struct {
	Host   string
	APIKey string
}

type Repair struct {
	RepairInterval string
	RunInterval    string
}

type Discord struct {
	Enabled       bool
	UpdateEnabled bool
	WebhookURL    string
}

type Config struct {
	LogLevel   string
	Blackhole  Blackhole
	RealDebrid Debrid
	Torbox     Debrid
	Radarr     Arr
	Sonarr     Arr
	Repair     Repair
	Discord    Discord
	AllowedExt []string
}

func envStr(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(strings.ToLower(envStr(key)))
	return err == nil && v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(envStr(key))
	if err != nil {
		return fallback
	}
	return v
}

func load() *Config {
	// Missing .env is fine; the environment may be set by the supervisor.
	_ = godotenv.Load()

	c := &Config{
		LogLevel: envStr("LOG_LEVEL"),
		Blackhole: Blackhole{
			BaseWatchPath:         envStr("BLACKHOLE_BASE_WATCH_PATH"),
			RadarrPath:            envStr("BLACKHOLE_RADARR_PATH"),
			SonarrPath:            envStr("BLACKHOLE_SONARR_PATH"),
			FailIfNotCached:       envBool("BLACKHOLE_FAIL_IF_NOT_CACHED"),
			RDMountRefreshSeconds: envInt("BLACKHOLE_RD_MOUNT_REFRESH_SECONDS", 30),
			WaitForTorrentTimeout: envInt("BLACKHOLE_WAIT_FOR_TORRENT_TIMEOUT", 60),
			HistoryPageSize:       envInt("BLACKHOLE_HISTORY_PAGE_SIZE", 500),
		},
		RealDebrid: Debrid{
			Name:              "realdebrid",
			Enabled:           envBool("REALDEBRID_ENABLED"),
			Host:              envStr("REALDEBRID_HOST"),
			APIKey:            envStr("REALDEBRID_API_KEY"),
			MountTorrentsPath: envStr("REALDEBRID_MOUNT_TORRENTS_PATH"),
			RateLimit:         envStr("REALDEBRID_RATE_LIMIT"),
		},
		Torbox: Debrid{
			Name:              "torbox",
			Enabled:           envBool("TORBOX_ENABLED"),
			Host:              envStr("TORBOX_HOST"),
			APIKey:            envStr("TORBOX_API_KEY"),
			MountTorrentsPath: envStr("TORBOX_MOUNT_TORRENTS_PATH"),
			RateLimit:         envStr("TORBOX_RATE_LIMIT"),
		},
		Radarr: Arr{
			Host:   envStr("RADARR_HOST"),
			APIKey: envStr("RADARR_API_KEY"),
		},
		Sonarr: Arr{
			Host:   envStr("SONARR_HOST"),
			APIKey: envStr("SONARR_API_KEY"),
		},
		Repair: Repair{
			RepairInterval: envStr("REPAIR_REPAIR_INTERVAL"),
			RunInterval:    envStr("REPAIR_RUN_INTERVAL"),
		},
		Discord: Discord{
			Enabled:       envBool("DISCORD_ENABLED"),
			UpdateEnabled: envBool("DISCORD_UPDATE_ENABLED"),
			WebhookURL:    envStr("DISCORD_WEBHOOK_URL"),
		},
		AllowedExt: getDefaultExtensions(),
	}
	return c
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	once.Do(func() {
		instance = load()
	})
	return instance
}

// Reload forces a reload of the configuration from the environment.
func Reload() {
	instance = nil
	once = sync.Once{}
}

// Debrids returns the enabled debrid configurations in submission order.
// RealDebrid comes first, matching the fallback order of sequential mode.
func (c *Config) Debrids() []Debrid {
	debrids := make([]Debrid, 0, 2)
	if c.RealDebrid.Enabled {
		debrids = append(debrids, c.RealDebrid)
	}
	if c.Torbox.Enabled {
		debrids = append(debrids, c.Torbox)
	}
	return debrids
}

func (c *Config) WatchPath(category string) string {
	sub := c.Blackhole.RadarrPath
	if category == "sonarr" || category == "series" {
		sub = c.Blackhole.SonarrPath
	}
	base := c.Blackhole.BaseWatchPath
	if !filepath.IsAbs(base) {
		if abs, err := filepath.Abs(base); err == nil {
			base = abs
		}
	}
	return filepath.Join(base, sub)
}

// IsAllowedFile reports whether the filename carries a media extension.
func (c *Config) IsAllowedFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return utils.Contains(c.AllowedExt, ext)
}

func validateBlackhole(c *Config) error {
	b := c.Blackhole
	if b.BaseWatchPath == "" {
		return errors.New("blackhole base watch path is required")
	}
	if b.RadarrPath == "" || b.SonarrPath == "" {
		return errors.New("blackhole radarr and sonarr paths are required")
	}
	return nil
}

func validateDebrids(c *Config) error {
	debrids := c.Debrids()
	if len(debrids) == 0 {
		return errors.New("at least one of RealDebrid or Torbox must be enabled")
	}
	for _, d := range debrids {
		if d.Host == "" {
			return fmt.Errorf("%s host is required", d.Name)
		}
		if d.APIKey == "" {
			return fmt.Errorf("%s api key is required", d.Name)
		}
		if d.MountTorrentsPath == "" {
			return fmt.Errorf("%s mount torrents path is required", d.Name)
		}
	}
	return nil
}

func validateArrs(c *Config) error {
	if c.Radarr.Host == "" || c.Radarr.APIKey == "" {
		return errors.New("radarr host and api key are required")
	}
	if c.Sonarr.Host == "" || c.Sonarr.APIKey == "" {
		return errors.New("sonarr host and api key are required")
	}
	return nil
}

// Validate checks all settings the watcher and repair need at startup.
func Validate(c *Config) error {
	if err := validateBlackhole(c); err != nil {
		return err
	}
	if err := validateDebrids(c); err != nil {
		return err
	}
	return validateArrs(c)
}
