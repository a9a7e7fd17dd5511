// Package config resolves the engine configuration. The engine itself only
// ever sees the Config value object; resolution (defaults, rc file,
// environment) happens here, driven by the daemon at startup.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/nettle-sh/lume/internal/ranker"
)

// DefaultRCPath is the rc file consulted when none is given.
const DefaultRCPath = "~/.config/lume/lume.toml"

// Config is the fully resolved configuration handed to the engine.
type Config struct {
	AppPaths   []string      // roots scanned for .desktop files
	CachePath  string        // binary index cache file
	SocketPath string        // unix socket served by the daemon
	Terminal   string        // terminal emulator for Terminal=true entries
	Workers    int           // parse worker pool size
	Debounce   time.Duration // watch event coalescing window
	ListLimit  int           // maximum results returned per search
	Tuning     ranker.Tuning // fuzzy match weights
}

type env struct {
	AppPaths   string `envconfig:"LUME_APP_PATHS"`
	CachePath  string `envconfig:"LUME_CACHE"`
	Socket     string `envconfig:"LUME_SOCK"`
	Terminal   string `envconfig:"LUME_TERM"`
	Workers    int    `envconfig:"LUME_WORKERS"`
	DebounceMs int    `envconfig:"LUME_DEBOUNCE_MS"`
	ListLimit  int    `envconfig:"LUME_LIST_LIMIT"`
}

type rcFile struct {
	AppPaths   []string  `toml:"app_paths"`
	CachePath  string    `toml:"cache_path"`
	Socket     string    `toml:"socket"`
	Terminal   string    `toml:"terminal"`
	Workers    int       `toml:"workers"`
	DebounceMs int       `toml:"debounce_ms"`
	ListLimit  int       `toml:"list_limit"`
	Tuning     *rcTuning `toml:"tuning"`
}

type rcTuning struct {
	MatchBase        int `toml:"match_base"`
	ConsecutiveBonus int `toml:"consecutive_bonus"`
	WordStartBonus   int `toml:"word_start_bonus"`
	LeadingBonus     int `toml:"leading_bonus"`
	GapPenalty       int `toml:"gap_penalty"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		AppPaths: []string{
			"/usr/share/applications",
			"/usr/local/share/applications",
			ExpandPath("~/.local/share/applications"),
		},
		CachePath:  defaultCachePath(),
		SocketPath: defaultSocketPath(),
		Workers:    4,
		Debounce:   500 * time.Millisecond,
		ListLimit:  128,
		Tuning:     ranker.DefaultTuning(),
	}
}

// Load resolves the configuration: defaults, overlaid by the rc file if it
// exists, overlaid by environment variables.
func Load(rcPath string) (Config, error) {
	cfg := Default()

	if rcPath == "" {
		rcPath = DefaultRCPath
	}
	rcPath = ExpandPath(rcPath)
	if err := cfg.applyRC(rcPath); err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	for i, p := range cfg.AppPaths {
		cfg.AppPaths[i] = ExpandPath(p)
	}
	cfg.CachePath = ExpandPath(cfg.CachePath)
	cfg.SocketPath = ExpandPath(cfg.SocketPath)

	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 128
	}
	if len(cfg.AppPaths) == 0 {
		return Config{}, fmt.Errorf("no application paths configured")
	}
	return cfg, nil
}

func (c *Config) applyRC(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading rc file %s: %w", path, err)
	}

	var rc rcFile
	if err := toml.Unmarshal(data, &rc); err != nil {
		return fmt.Errorf("parsing rc file %s: %w", path, err)
	}

	if len(rc.AppPaths) > 0 {
		c.AppPaths = rc.AppPaths
	}
	if rc.CachePath != "" {
		c.CachePath = rc.CachePath
	}
	if rc.Socket != "" {
		c.SocketPath = rc.Socket
	}
	if rc.Terminal != "" {
		c.Terminal = rc.Terminal
	}
	if rc.Workers > 0 {
		c.Workers = rc.Workers
	}
	if rc.DebounceMs > 0 {
		c.Debounce = time.Duration(rc.DebounceMs) * time.Millisecond
	}
	if rc.ListLimit > 0 {
		c.ListLimit = rc.ListLimit
	}
	if rc.Tuning != nil {
		t := c.Tuning
		if rc.Tuning.MatchBase > 0 {
			t.MatchBase = rc.Tuning.MatchBase
		}
		if rc.Tuning.ConsecutiveBonus > 0 {
			t.ConsecutiveBonus = rc.Tuning.ConsecutiveBonus
		}
		if rc.Tuning.WordStartBonus > 0 {
			t.WordStartBonus = rc.Tuning.WordStartBonus
		}
		if rc.Tuning.LeadingBonus > 0 {
			t.LeadingBonus = rc.Tuning.LeadingBonus
		}
		if rc.Tuning.GapPenalty > 0 {
			t.GapPenalty = rc.Tuning.GapPenalty
		}
		c.Tuning = t
	}
	return nil
}

func (c *Config) applyEnv() error {
	var e env
	if err := envconfig.Process("", &e); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}

	if e.AppPaths != "" {
		var paths []string
		for _, p := range strings.Split(e.AppPaths, ":") {
			if p != "" {
				paths = append(paths, p)
			}
		}
		c.AppPaths = paths
	}
	if e.CachePath != "" {
		c.CachePath = e.CachePath
	}
	if e.Socket != "" {
		c.SocketPath = e.Socket
	}
	if e.Terminal != "" {
		c.Terminal = e.Terminal
	}
	if e.Workers > 0 {
		c.Workers = e.Workers
	}
	if e.DebounceMs > 0 {
		c.Debounce = time.Duration(e.DebounceMs) * time.Millisecond
	}
	if e.ListLimit > 0 {
		c.ListLimit = e.ListLimit
	}
	return nil
}

// TerminalCommand returns the terminal emulator to wrap Terminal=true
// entries with.
func (c *Config) TerminalCommand() string {
	if c.Terminal != "" {
		return c.Terminal
	}
	if term := os.Getenv("TERM"); term != "" {
		return term
	}
	return "xterm"
}

// ExpandPath expands a leading ~ to the user home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return strings.Replace(path, "~", home, 1)
	}
	return path
}

func defaultCachePath() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return ExpandPath("~/.cache/lume/apps.cache")
	}
	return filepath.Join(cacheDir, "lume", "apps.cache")
}

func defaultSocketPath() string {
	u, err := user.Current()
	if err != nil {
		return "/tmp/lume/lumed.sock"
	}
	return fmt.Sprintf("/tmp/lume-%s/lumed.sock", u.Uid)
}
