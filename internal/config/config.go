// Package config provides configuration management for retroboard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/thebtf/retroboard/pkg/models"
	"github.com/thebtf/retroboard/pkg/similarity"
)

const (
	// DefaultWorkerPort is the default HTTP port for the worker service.
	DefaultWorkerPort = 37780

	// DefaultMaxConns is the default database pool size for PostgreSQL.
	DefaultMaxConns = 8
)

// Settings keys, used in the settings file and as environment variables.
const (
	KeyDataDir                = "RETRO_DATA_DIR"
	KeyWorkerPort             = "RETRO_WORKER_PORT"
	KeyDBPath                 = "RETRO_DB_PATH"
	KeyDatabaseDSN            = "RETRO_DATABASE_DSN"
	KeyMaxConns               = "RETRO_MAX_CONNS"
	KeyRedisURL               = "RETRO_REDIS_URL"
	KeyEventsChannel          = "RETRO_EVENTS_CHANNEL"
	KeyAuthSecret             = "RETRO_AUTH_SECRET"
	KeyAuthIssuer             = "RETRO_AUTH_ISSUER"
	KeyAuthAudience           = "RETRO_AUTH_AUDIENCE"
	KeyAllowedOrigins         = "RETRO_ALLOWED_ORIGINS"
	KeyLogLevel               = "RETRO_LOG_LEVEL"
	KeyLogFormat              = "RETRO_LOG_FORMAT"
	KeySuggestAlgorithm       = "RETRO_SUGGEST_ALGORITHM"
	KeySuggestThreshold       = "RETRO_SUGGEST_THRESHOLD"
	KeySuggestMinGroup        = "RETRO_SUGGEST_MIN_GROUP"
	KeySuggestMaxGroup        = "RETRO_SUGGEST_MAX_GROUP"
	KeySuggestExcludeKeywords = "RETRO_SUGGEST_EXCLUDE_KEYWORDS"
)

// settingsFiles are tried in order inside the data directory.
var settingsFiles = []string{"settings.json", "settings.yaml", "settings.yml"}

// Config holds the application configuration.
type Config struct {
	// Worker settings
	WorkerPort     int      `json:"worker_port"`
	AllowedOrigins []string `json:"allowed_origins"`

	// Database settings. DatabaseDSN selects PostgreSQL, otherwise SQLite at DBPath.
	DBPath      string `json:"db_path"`
	DatabaseDSN string `json:"-"`
	MaxConns    int    `json:"max_conns"`

	// Event fan-out. Empty RedisURL keeps events in-process.
	RedisURL      string `json:"redis_url"`
	EventsChannel string `json:"events_channel"`

	// Token verification. Empty AuthSecret runs in development mode.
	AuthSecret   string `json:"-"`
	AuthIssuer   string `json:"auth_issuer"`
	AuthAudience string `json:"auth_audience"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// Suggestion defaults, overridable per request
	Suggest similarity.Config `json:"suggest"`
}

// DataDir returns the data directory path (~/.retroboard, or RETRO_DATA_DIR).
func DataDir() string {
	if dir := os.Getenv(KeyDataDir); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".retroboard")
}

// DBPath returns the SQLite database file path.
func DBPath() string {
	return filepath.Join(DataDir(), "retroboard.db")
}

// SettingsPath returns the settings file path: the first existing settings file,
// or settings.json when there is none.
func SettingsPath() string {
	dir := DataDir()
	for _, name := range settingsFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(dir, settingsFiles[0])
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		WorkerPort:    DefaultWorkerPort,
		DBPath:        DBPath(),
		MaxConns:      DefaultMaxConns,
		EventsChannel: "retroboard:events",
		LogLevel:      "info",
		LogFormat:     "console",
		Suggest:       similarity.DefaultConfig(),
	}
}

// Load builds the configuration: defaults, then the settings file, then .env files,
// then environment variables.
func Load() (*Config, error) {
	loadDotEnv()
	return LoadFile(SettingsPath(), os.LookupEnv)
}

// LoadFile builds the configuration from the settings file at path and the variables
// visible through lookup. A missing file yields defaults.
func LoadFile(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	settings, err := readSettings(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.apply(settings); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	if err := cfg.apply(envSettings(lookup)); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.WorkerPort <= 0 || c.WorkerPort > 65535 {
		return fmt.Errorf("%s out of range: %d", KeyWorkerPort, c.WorkerPort)
	}
	if c.DatabaseDSN == "" && c.DBPath == "" {
		return fmt.Errorf("one of %s or %s is required", KeyDatabaseDSN, KeyDBPath)
	}
	if err := c.Suggest.Validate(); err != nil {
		return fmt.Errorf("suggestion settings: %w", err)
	}
	return nil
}

// loadDotEnv loads .env from the working directory and the data directory.
// Variables already set in the process win.
func loadDotEnv() {
	for _, path := range []string{".env", filepath.Join(DataDir(), ".env")} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}

// readSettings decodes a JSON or YAML settings file into a key/value map.
func readSettings(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var settings map[string]interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &settings)
	default:
		err = json.Unmarshal(data, &settings)
	}
	if err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return settings, nil
}

// envSettings collects every known key present in the environment.
func envSettings(lookup func(string) (string, bool)) map[string]interface{} {
	if lookup == nil {
		return nil
	}
	settings := make(map[string]interface{})
	for _, key := range []string{
		KeyWorkerPort, KeyDBPath, KeyDatabaseDSN, KeyMaxConns, KeyRedisURL, KeyEventsChannel,
		KeyAuthSecret, KeyAuthIssuer, KeyAuthAudience, KeyAllowedOrigins, KeyLogLevel,
		KeyLogFormat, KeySuggestAlgorithm, KeySuggestThreshold, KeySuggestMinGroup,
		KeySuggestMaxGroup, KeySuggestExcludeKeywords,
	} {
		if v, ok := lookup(key); ok {
			settings[key] = v
		}
	}
	return settings
}

// apply maps settings onto c. Values may be native (file) or strings (environment).
func (c *Config) apply(settings map[string]interface{}) error {
	for key, raw := range settings {
		var err error
		switch key {
		case KeyWorkerPort:
			c.WorkerPort, err = asInt(raw)
		case KeyDBPath:
			c.DBPath = asString(raw)
		case KeyDatabaseDSN:
			c.DatabaseDSN = asString(raw)
		case KeyMaxConns:
			c.MaxConns, err = asInt(raw)
		case KeyRedisURL:
			c.RedisURL = asString(raw)
		case KeyEventsChannel:
			if v := asString(raw); v != "" {
				c.EventsChannel = v
			}
		case KeyAuthSecret:
			c.AuthSecret = asString(raw)
		case KeyAuthIssuer:
			c.AuthIssuer = asString(raw)
		case KeyAuthAudience:
			c.AuthAudience = asString(raw)
		case KeyAllowedOrigins:
			c.AllowedOrigins = asStrings(raw)
		case KeyLogLevel:
			c.LogLevel = strings.ToLower(asString(raw))
		case KeyLogFormat:
			c.LogFormat = strings.ToLower(asString(raw))
		case KeySuggestAlgorithm:
			var algo models.SimilarityAlgorithm
			algo, err = similarity.ParseAlgorithm(asString(raw))
			c.Suggest.Algorithm = algo
		case KeySuggestThreshold:
			c.Suggest.Threshold, err = asFloat(raw)
		case KeySuggestMinGroup:
			c.Suggest.MinGroupSize, err = asInt(raw)
		case KeySuggestMaxGroup:
			c.Suggest.MaxGroupSize, err = asInt(raw)
		case KeySuggestExcludeKeywords:
			c.Suggest.ExcludeKeywords = asStrings(raw)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("not an integer: %v", t)
		}
		return int(t), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("not an integer: %v", v)
	}
}

func asFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

// asStrings accepts a list or a comma-separated string.
func asStrings(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return splitTrim(t)
	default:
		return nil
	}
}

// splitTrim splits a comma-separated string and trims whitespace.
func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
