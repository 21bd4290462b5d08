package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
)

const (
	envConfigPath  = "VOICEASSIST_CONFIG"
	envGatewayURL  = "VOICEASSIST_GATEWAY_URL"
	envGatewayKey  = "VOICEASSIST_GATEWAY_KEY"
	defaultPath    = "config.json"
	defaultTimeout = 60
)

// DefaultFunctionPath is the edge function handling a single conversational turn.
const DefaultFunctionPath = "/functions/v1/process-voice-input"

// Config represents runtime configuration for the application.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Gateway     GatewayConfig             `json:"gateway"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Capture     CaptureConfig             `json:"capture"`
	Speech      SpeechConfig              `json:"speech"`
	Providers   map[string]ProviderConfig `json:"providers"`
}

type BasicConfig struct {
	ServerAddress  string `json:"server_address"`
	AdminToken     string `json:"admin_token"`
	Database       string `json:"database"`
	DashboardLimit int    `json:"dashboard_limit"`
	CacheTTL       int    `json:"cache_ttl_seconds"`
}

// GatewayConfig locates the remote conversational backend.
type GatewayConfig struct {
	BaseURL        string `json:"base_url"`
	FunctionPath   string `json:"function_path"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// CaptureConfig selects the external recorder used for microphone capture.
type CaptureConfig struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	MimeType string   `json:"mime_type"`
}

// SpeechConfig selects the external text-to-speech program.
type SpeechConfig struct {
	Command   string   `json:"command"`
	Args      []string `json:"args"`
	Rate      float64  `json:"rate"`
	AutoSpeak bool     `json:"auto_speak"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// Path returns the configuration path requested through the environment.
func Path() string {
	return os.Getenv(envConfigPath)
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error; every field then takes its default.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	if v := os.Getenv(envGatewayURL); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv(envGatewayKey); v != "" {
		cfg.Gateway.APIKey = v
	}
	cfg.applyDefaults(filepath.Dir(absPath))
	return &cfg, nil
}

// Merge copies every non-zero field of overrides over cfg.
func (c *Config) Merge(overrides Config) error {
	if err := mergo.Merge(c, overrides, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults(baseDir string) {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.Database == "" {
		c.BasicConfig.Database = "sqlite3"
	}
	if c.BasicConfig.DashboardLimit <= 0 {
		c.BasicConfig.DashboardLimit = 20
	}
	if c.BasicConfig.CacheTTL <= 0 {
		c.BasicConfig.CacheTTL = 30
	}
	if c.Gateway.FunctionPath == "" {
		c.Gateway.FunctionPath = DefaultFunctionPath
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		c.Gateway.TimeoutSeconds = defaultTimeout
	}
	if c.Speech.Rate <= 0 {
		c.Speech.Rate = 0.9
	}
	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if _, ok := c.Databases["sqlite3"]; !ok {
		c.Databases["sqlite3"] = DatabaseConfig{DSN: "voiceassist.db"}
	}
	for name, db := range c.Databases {
		if !isSQLite(name) || db.DSN == "" || db.DSN == ":memory:" || strings.HasPrefix(db.DSN, "file:") {
			continue
		}
		if !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(baseDir, db.DSN)
			c.Databases[name] = db
		}
	}
}

// GatewayEndpoint joins the gateway base URL and function path.
func (c *Config) GatewayEndpoint() string {
	return strings.TrimRight(c.Gateway.BaseURL, "/") + "/" + strings.TrimLeft(c.Gateway.FunctionPath, "/")
}

// GatewayTimeout reports the per-turn HTTP timeout.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}

// CacheTTL reports how long dashboard lists stay cached.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.BasicConfig.CacheTTL) * time.Second
}

func isSQLite(name string) bool {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}
