package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	instance   *Config
	once       sync.Once
	configPath string
)

type Auth struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // bcrypt hash
	APIToken string `json:"api_token,omitempty"`
}

type Config struct {
	// server
	BindAddress string `json:"bind_address,omitempty"`
	URLBase     string `json:"url_base,omitempty"`
	Port        string `json:"port,omitempty"`

	LogLevel string `json:"log_level,omitempty"`
	UseAuth  bool   `json:"use_auth,omitempty"`
	Auth     *Auth  `json:"auth,omitempty"`

	// Archive URLs must match one of these prefixes unless the request
	// carries the API token.
	AllowedPrefixes []string `json:"allowed_prefixes,omitempty"`

	// Remote fetch settings
	FetchRateLimit string `json:"fetch_rate_limit,omitempty"` // e.g. "10/second", "200/minute"
	Proxy          string `json:"proxy,omitempty"`
	MaxRetries     int    `json:"max_retries,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`

	// Verify decompressed entries against the stored CRC-32. Unset means enabled.
	VerifyChecksum *bool `json:"verify_checksum,omitempty"`

	Path string `json:"-"`
}

func SetConfigPath(path string) {
	configPath = path
}

func Get() *Config {
	once.Do(func() {
		instance = &Config{}
		if err := instance.loadConfig(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			instance.setDefaults()
		}
	})
	return instance
}

// Reload forces a reload of the configuration from disk
func Reload() {
	instance = nil
	once = sync.Once{}
}

func (c *Config) JsonFile() string {
	return filepath.Join(c.Path, "config.json")
}

func (c *Config) loadConfig() error {
	if configPath == "" {
		c.setDefaults()
		return nil
	}
	c.Path = configPath
	data, err := os.ReadFile(c.JsonFile())
	if os.IsNotExist(err) {
		return c.createConfig(configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	c.Path = configPath
	c.normalize()
	return nil
}

func (c *Config) normalize() {
	c.Port = cmp.Or(c.Port, "8282")
	c.LogLevel = cmp.Or(c.LogLevel, "info")
	if c.URLBase == "" {
		c.URLBase = "/"
	}
	if !strings.HasPrefix(c.URLBase, "/") {
		c.URLBase = "/" + c.URLBase
	}
	if !strings.HasSuffix(c.URLBase, "/") {
		c.URLBase += "/"
	}
}

func (c *Config) setDefaults() {
	c.URLBase = "/"
	c.Port = "8282"
	c.LogLevel = "info"
	c.MaxRetries = 3
	c.TimeoutSeconds = 60
}

func (c *Config) createConfig(path string) error {
	// Create the directory if it doesn't exist
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	c.setDefaults()
	c.Path = path
	c.UseAuth = true
	c.Auth = &Auth{APIToken: uuid.NewString()}
	return c.Save()
}

func (c *Config) Save() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.JsonFile(), data, 0644)
}

func (c *Config) GetAuth() *Auth {
	return c.Auth
}

// ChecksumVerification reports whether decompressed data should be
// validated against the stored CRC-32.
func (c *Config) ChecksumVerification() bool {
	if c.VerifyChecksum == nil {
		return true
	}
	return *c.VerifyChecksum
}

// IsURLAllowed reports whether an archive URL matches one of the
// configured prefixes.
func (c *Config) IsURLAllowed(url string) bool {
	for _, prefix := range c.AllowedPrefixes {
		if prefix != "" && strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
