// Package config loads the console settings from piper-console.yaml, then
// lets .env files and the environment override them.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"piper-console/pkg/session"
)

const (
	DefaultFile    = "piper-console.yaml"
	DefaultEnvFile = ".env"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Polling PollingConfig `yaml:"polling"`
	Storage StorageConfig `yaml:"storage"`
}

type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"` // seconds
}

// PollingConfig holds the monitor periods in seconds.
type PollingConfig struct {
	Training      int `yaml:"training"`
	Export        int `yaml:"export"`
	Remote        int `yaml:"remote"`
	Transcription int `yaml:"transcription"`
}

type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	DownloadDir string `yaml:"download_dir"`
	HistoryDB   string `yaml:"history_db"`
}

func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:5000"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 30
	}
	if c.Polling.Training == 0 {
		c.Polling.Training = 2
	}
	if c.Polling.Export == 0 {
		c.Polling.Export = 2
	}
	if c.Polling.Remote == 0 {
		c.Polling.Remote = 5
	}
	if c.Polling.Transcription == 0 {
		c.Polling.Transcription = 2
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "~/.piper-console"
	}
	if c.Storage.DownloadDir == "" {
		c.Storage.DownloadDir = "downloads"
	}
	if c.Storage.HistoryDB == "" {
		c.Storage.HistoryDB = "history.db"
	}
}

// LoadConfig reads one YAML file and fills in defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

// Load is LoadConfig plus overrides. A missing config or env file is not an
// error; an empty path skips that source.
func Load(path, envFile string) (*Config, error) {
	c := Default()
	if path != "" {
		loaded, err := LoadConfig(path)
		switch {
		case err == nil:
			c = loaded
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	c.Server.BaseURL = envString("PIPER_API_URL", c.Server.BaseURL)
	c.Server.Timeout = ceilSeconds(envDuration("PIPER_TIMEOUT", c.TimeoutDuration()))
	c.Storage.DataDir = envString("PIPER_DATA_DIR", c.Storage.DataDir)
	c.Storage.HistoryDB = envString("PIPER_HISTORY_DB", c.Storage.HistoryDB)
	c.Storage.DownloadDir = envString("PIPER_DOWNLOAD_DIR", c.Storage.DownloadDir)
	c.Polling.Remote = envInt("PIPER_REMOTE_INTERVAL", c.Polling.Remote)
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.base_url must be an http(s) URL, got %q", c.Server.BaseURL)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be > 0")
	}
	for name, v := range map[string]int{
		"training": c.Polling.Training, "export": c.Polling.Export,
		"remote": c.Polling.Remote, "transcription": c.Polling.Transcription,
	} {
		if v <= 0 {
			return fmt.Errorf("polling.%s must be > 0", name)
		}
	}
	return nil
}

func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Server.Timeout) * time.Second
}

func (c *Config) Intervals() session.Intervals {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return session.Intervals{
		Training:      sec(c.Polling.Training),
		Export:        sec(c.Polling.Export),
		Remote:        sec(c.Polling.Remote),
		Transcription: sec(c.Polling.Transcription),
	}
}

// DataDir is the storage root with a leading ~ expanded.
func (c *Config) DataDir() string {
	return expandHome(c.Storage.DataDir)
}

func (c *Config) HistoryPath() string {
	return c.underData(c.Storage.HistoryDB)
}

func (c *Config) DownloadPath() string {
	return c.underData(c.Storage.DownloadDir)
}

func (c *Config) underData(p string) string {
	p = expandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir(), p)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func normalize(s string) string {
	return strings.TrimSpace(s)
}

func envString(name, def string) string {
	if v := normalize(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v := normalize(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// ceilSeconds rounds positive sub-second durations up to one second.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return int(d / time.Second)
	}
	return int((d + time.Second - 1) / time.Second)
}

// envDuration accepts Go durations ("45s", "2m") or bare seconds.
func envDuration(name string, def time.Duration) time.Duration {
	v := normalize(os.Getenv(name))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envBool(name string, def bool) bool {
	v := strings.ToLower(normalize(os.Getenv(name)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// Debug reports whether PIPER_DEBUG asks for verbose request logging.
func Debug() bool {
	return envBool("PIPER_DEBUG", false)
}
