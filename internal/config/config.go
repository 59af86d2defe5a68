// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coversync/coversync-server/internal/validation"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Data     DataConfig
	Dirs     DirsConfig
	Jellyfin JellyfinConfig
	TMDB     TMDBConfig
	Mediux   MediuxConfig
	Match    MatchConfig
	Schedule ScheduleConfig
	Watch    WatchConfig
	Server   ServerConfig
	Pass     PassConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `env:"ENV" validate:"required,oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level      string `env:"LOG_LEVEL" validate:"required"`
	File       string // Optional rotated log file
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" validate:"gte=0"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" validate:"gte=0"`
}

// DataConfig holds local state storage configuration.
type DataConfig struct {
	// BasePath holds the badger database, the report files and the lock file.
	BasePath string `env:"DATA_PATH" validate:"required"`
}

// DirsConfig holds the lifecycle directories. Relative names are resolved
// against Root.
type DirsConfig struct {
	Root     string `env:"COVER_ROOT" validate:"required"`
	Pending  string `env:"PENDING_DIR" validate:"required"`
	Cover    string `env:"COVER_DIR" validate:"required"`
	NoMatch  string `env:"NO_MATCH_DIR" validate:"required"`
	Consumed string `env:"CONSUMED_DIR" validate:"required"`
	Replaced string `env:"REPLACED_DIR" validate:"required"`
}

// JellyfinConfig holds catalog collaborator configuration.
type JellyfinConfig struct {
	URL             string `env:"JELLYFIN_URL" validate:"required,url"`
	APIKey          string `env:"JELLYFIN_API_KEY" validate:"required"`
	ChunkSize       int    `env:"CATALOG_CHUNK_SIZE" validate:"gte=1,lte=10000"`
	IncludeEpisodes bool
	Timeout         time.Duration
}

// TMDBConfig holds metadata-lookup collaborator configuration.
type TMDBConfig struct {
	Enabled   bool
	APIKey    string
	BaseURL   string `env:"TMDB_BASE_URL" validate:"omitempty,url"`
	Languages []string
	CacheTTL  time.Duration
	Timeout   time.Duration
}

// MediuxConfig holds the mediux set downloader configuration.
type MediuxConfig struct {
	Enabled      bool
	QueueFile    string // Set URLs, one per line (default: DATA_PATH/mediux.txt)
	SiteURL      string `env:"MEDIUX_SITE_URL" validate:"omitempty,url"`
	AssetURL     string `env:"MEDIUX_ASSET_URL" validate:"omitempty,url"`
	PollInterval time.Duration
	Timeout      time.Duration
}

// MatchConfig holds matcher policy configuration.
type MatchConfig struct {
	TieBreak         []string
	AutoResolve      bool
	BlacklistEnabled bool
	BlacklistPath    string
}

// ScheduleConfig holds pass scheduling configuration.
type ScheduleConfig struct {
	Times               []string `env:"SCHEDULED_TIMES" validate:"dive,hhmm"` // local time
	ChangeCheckInterval time.Duration
}

// WatchConfig holds file-drop watcher configuration.
type WatchConfig struct {
	Enabled     bool
	SettleDelay time.Duration
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port           string        // Server port (default: 8080)
	ReadTimeout    time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout   time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout    time.Duration // HTTP idle timeout (default: 60s)
	TriggerEnabled bool          // Expose POST /api/v1/trigger (default: true)
}

// PassConfig holds reconciliation pass tuning.
type PassConfig struct {
	Workers       int `env:"WORKERS" validate:"gte=1,lte=64"`
	ConvertToJPEG bool
	Publish       bool
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFile := flag.String("log-file", "", "Optional rotated log file")
	dataPath := flag.String("data-path", "", "Directory for local state (default: ~/coversync)")
	coverRoot := flag.String("cover-root", "", "Root of the lifecycle directories")

	jellyfinURL := flag.String("jellyfin-url", "", "Media server base URL")
	chunkSize := flag.String("catalog-chunk-size", "", "Catalog entries per fetch (default: 500)")

	tmdbLanguages := flag.String("tmdb-languages", "", "Comma separated lookup languages (default: en-US,de-DE)")
	titleLookup := flag.String("title-lookup", "", "Enable alternate title lookup (default: true)")
	mediuxEnabled := flag.String("mediux", "", "Download mediux sets listed in the queue file (default: true)")

	scheduledTimes := flag.String("scheduled-times", "", "Comma separated HH:MM pass times")
	changeInterval := flag.String("change-check-interval", "", "Catalog change check interval (default: 15m)")
	watchEnabled := flag.String("watch", "", "Watch pending-intake for drops (default: true)")

	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	triggerEnabled := flag.String("trigger", "", "Enable the trigger endpoint (default: true)")

	workers := flag.String("workers", "", "Concurrent mutation workers (default: 4)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:      getConfigValue(*logLevel, "LOG_LEVEL", "info"),
			File:       getConfigValue(*logFile, "LOG_FILE", ""),
			MaxSizeMB:  getIntConfigValue("", "LOG_MAX_SIZE_MB", 10),
			MaxBackups: getIntConfigValue("", "LOG_MAX_BACKUPS", 3),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Dirs: DirsConfig{
			Root:     getConfigValue(*coverRoot, "COVER_ROOT", ""),
			Pending:  getConfigValue("", "PENDING_DIR", "pending-intake"),
			Cover:    getConfigValue("", "COVER_DIR", "organized-cover"),
			NoMatch:  getConfigValue("", "NO_MATCH_DIR", "no-match"),
			Consumed: getConfigValue("", "CONSUMED_DIR", "consumed"),
			Replaced: getConfigValue("", "REPLACED_DIR", "replaced"),
		},
		Jellyfin: JellyfinConfig{
			URL:             strings.TrimRight(getConfigValue(*jellyfinURL, "JELLYFIN_URL", ""), "/"),
			APIKey:          getConfigValue("", "JELLYFIN_API_KEY", ""),
			ChunkSize:       getIntConfigValue(*chunkSize, "CATALOG_CHUNK_SIZE", 500),
			IncludeEpisodes: getBoolConfigValue("", "INCLUDE_EPISODES", false),
		},
		TMDB: TMDBConfig{
			Enabled:   getBoolConfigValue(*titleLookup, "TITLE_LOOKUP_ENABLED", true),
			APIKey:    getConfigValue("", "TMDB_API_KEY", ""),
			BaseURL:   getConfigValue("", "TMDB_BASE_URL", "https://api.themoviedb.org/3"),
			Languages: splitList(getConfigValue(*tmdbLanguages, "TMDB_LANGUAGES", "en-US,de-DE")),
		},
		Mediux: MediuxConfig{
			Enabled:   getBoolConfigValue(*mediuxEnabled, "MEDIUX_ENABLED", true),
			QueueFile: getConfigValue("", "MEDIUX_FILE", ""),
			SiteURL:   strings.TrimRight(getConfigValue("", "MEDIUX_SITE_URL", "https://mediux.pro"), "/"),
			AssetURL:  strings.TrimRight(getConfigValue("", "MEDIUX_ASSET_URL", "https://api.mediux.pro/assets"), "/"),
		},
		Match: MatchConfig{
			TieBreak:         splitList(getConfigValue("", "MATCH_TIE_BREAK", "year,kind,id")),
			AutoResolve:      getBoolConfigValue("", "MATCH_AUTO_RESOLVE", false),
			BlacklistEnabled: getBoolConfigValue("", "BLACKLIST_ENABLED", true),
			BlacklistPath:    getConfigValue("", "BLACKLIST_PATH", ""),
		},
		Schedule: ScheduleConfig{
			Times: splitList(getConfigValue(*scheduledTimes, "SCHEDULED_TIMES", "")),
		},
		Watch: WatchConfig{
			Enabled: getBoolConfigValue(*watchEnabled, "WATCH_ENABLED", true),
		},
		Server: ServerConfig{
			Port:           getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			TriggerEnabled: getBoolConfigValue(*triggerEnabled, "TRIGGER_ENABLED", true),
		},
		Pass: PassConfig{
			Workers:       getIntConfigValue(*workers, "WORKERS", 4),
			ConvertToJPEG: getBoolConfigValue("", "CONVERT_TO_JPEG", true),
			Publish:       getBoolConfigValue("", "PUBLISH_ENABLED", false),
		},
	}

	durations := []struct {
		target *time.Duration
		flag   string
		envKey string
		def    string
	}{
		{&cfg.TMDB.CacheTTL, "", "TITLE_CACHE_TTL", "168h"},
		{&cfg.Jellyfin.Timeout, "", "HTTP_TIMEOUT", "30s"},
		{&cfg.TMDB.Timeout, "", "HTTP_TIMEOUT", "30s"},
		{&cfg.Mediux.Timeout, "", "HTTP_TIMEOUT", "30s"},
		{&cfg.Mediux.PollInterval, "", "MEDIUX_POLL_INTERVAL", "10s"},
		{&cfg.Schedule.ChangeCheckInterval, *changeInterval, "CHANGE_CHECK_INTERVAL", "15m"},
		{&cfg.Watch.SettleDelay, "", "WATCH_SETTLE_DELAY", "5s"},
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
	}
	for _, d := range durations {
		v, err := getDurationConfigValue(d.flag, d.envKey, d.def)
		if err != nil {
			return nil, err
		}
		*d.target = v
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.TMDB.Enabled && c.TMDB.APIKey != "" && c.TMDB.CacheTTL <= 0 {
		return errors.New("TITLE_CACHE_TTL must be positive")
	}

	validTie := map[string]bool{"year": true, "kind": true, "id": true}
	for _, k := range c.Match.TieBreak {
		if !validTie[k] {
			return fmt.Errorf("invalid tie-break key: %s (must be year, kind, or id)", k)
		}
	}

	if c.Mediux.Enabled && c.Mediux.PollInterval <= 0 {
		return errors.New("MEDIUX_POLL_INTERVAL must be positive")
	}

	for _, s := range []any{&c.App, &c.Logger, &c.Data, &c.Dirs, &c.Jellyfin, &c.TMDB, &c.Mediux, &c.Schedule, &c.Pass} {
		if err := validation.Struct(s); err != nil {
			return err
		}
	}

	return nil
}

// TitleLookupActive reports whether alternate title lookup can run.
func (c *Config) TitleLookupActive() bool {
	return c.TMDB.Enabled && c.TMDB.APIKey != ""
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandPaths resolves the data path and every lifecycle directory.
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.Data.BasePath, err = expandPath(c.Data.BasePath, filepath.Join(homeDir, "coversync")); err != nil {
		return err
	}
	if c.Dirs.Root, err = expandPath(c.Dirs.Root, filepath.Join(c.Data.BasePath, "covers")); err != nil {
		return err
	}

	for _, dir := range []*string{&c.Dirs.Pending, &c.Dirs.Cover, &c.Dirs.NoMatch, &c.Dirs.Consumed, &c.Dirs.Replaced} {
		if !filepath.IsAbs(*dir) && !strings.HasPrefix(*dir, "~/") {
			*dir = filepath.Join(c.Dirs.Root, *dir)
		}
		if *dir, err = expandPath(*dir, ""); err != nil {
			return err
		}
	}

	if c.Match.BlacklistPath, err = expandPath(c.Match.BlacklistPath, filepath.Join(c.Data.BasePath, "blacklist.yaml")); err != nil {
		return err
	}
	if c.Mediux.QueueFile, err = expandPath(c.Mediux.QueueFile, filepath.Join(c.Data.BasePath, "mediux.txt")); err != nil {
		return err
	}
	if c.Logger.File != "" {
		if c.Logger.File, err = expandPath(c.Logger.File, ""); err != nil {
			return err
		}
	}
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getDurationConfigValue parses a duration from flag, env var, or default.
func getDurationConfigValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}

// splitList splits a comma separated value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		// Env vars take precedence over the .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
