package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"docvault/internal/replica"
	"docvault/internal/storage"
)

const (
	DefaultAPIURL          = "http://127.0.0.1:7480"
	DefaultDataDirName     = ".docvault"
	DefaultLogLevel        = "info"
	DefaultLockTimeout     = 5 * time.Minute
	DefaultSyncLockTimeout = 2 * time.Minute

	configFileName           = ".docvault.toml"
	configDirEnvKey          = "DOCVAULT_CONFIG_DIR"
	trustProjectConfigEnvKey = "DOCVAULT_TRUST_PROJECT_CONFIG"
)

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// RemoteConfig describes the remote replica and how calls to it are retried.
type RemoteConfig struct {
	URL           string   `toml:"url"`
	User          string   `toml:"user"`
	Password      string   `toml:"password"`
	RetryAttempts int      `toml:"retry_attempts"`
	RetryTimeout  Duration `toml:"retry_timeout"`
	RetryPause    Duration `toml:"retry_pause"`
}

// SyncConfig holds sync behaviour.
type SyncConfig struct {
	KeepDeletedMarkers bool     `toml:"keep_deleted_markers"`
	LockTimeout        Duration `toml:"lock_timeout"`
}

// Config defines runtime configuration for docvault.
type Config struct {
	APIURL                   string       `toml:"api_url"`
	DataDir                  string       `toml:"data_dir"`
	DBPath                   string       `toml:"db_path"`
	LogLevel                 string       `toml:"log_level"`
	LockTimeout              Duration     `toml:"lock_timeout"`
	Remote                   RemoteConfig `toml:"remote"`
	Sync                     SyncConfig   `toml:"sync"`
	TrustedProjectConfigPath string       `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	retry := replica.DefaultRetryPolicy()
	return Config{
		APIURL:      DefaultAPIURL,
		LogLevel:    DefaultLogLevel,
		LockTimeout: Duration(DefaultLockTimeout),
		Remote: RemoteConfig{
			RetryAttempts: retry.Attempts,
			RetryTimeout:  Duration(retry.BaseTimeout),
			RetryPause:    Duration(retry.Pause),
		},
		Sync: SyncConfig{
			LockTimeout: Duration(DefaultSyncLockTimeout),
		},
	}
}

// Storage maps the configuration onto the storage service settings.
func (c *Config) Storage() storage.Config {
	return storage.Config{
		DataDir:            c.DataDir,
		DBPath:             c.DBPath,
		KeepDeletedMarkers: c.Sync.KeepDeletedMarkers,
		LockTimeout:        c.LockTimeout.Std(),
		SyncLockTimeout:    c.Sync.LockTimeout.Std(),
		Remote: replica.RemoteConfig{
			URL:      c.Remote.URL,
			User:     c.Remote.User,
			Password: c.Remote.Password,
		},
		Retry: replica.RetryPolicy{
			Attempts:    c.Remote.RetryAttempts,
			BaseTimeout: c.Remote.RetryTimeout.Std(),
			Pause:       c.Remote.RetryPause.Std(),
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"data_dir",
	"db_path",
	"log_level",
	"lock_timeout",
	"remote.url",
	"remote.user",
	"remote.password",
	"remote.retry_attempts",
	"remote.retry_timeout",
	"remote.retry_pause",
	"sync.keep_deleted_markers",
	"sync.lock_timeout",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "data_dir":
		return c.DataDir, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "lock_timeout":
		return c.LockTimeout.Std().String(), nil
	case "remote.url":
		return c.Remote.URL, nil
	case "remote.user":
		return c.Remote.User, nil
	case "remote.password":
		if c.Remote.Password == "" {
			return "", nil
		}
		return "********", nil
	case "remote.retry_attempts":
		return strconv.Itoa(c.Remote.RetryAttempts), nil
	case "remote.retry_timeout":
		return c.Remote.RetryTimeout.Std().String(), nil
	case "remote.retry_pause":
		return c.Remote.RetryPause.Std().String(), nil
	case "sync.keep_deleted_markers":
		return strconv.FormatBool(c.Sync.KeepDeletedMarkers), nil
	case "sync.lock_timeout":
		return c.Sync.LockTimeout.Std().String(), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.DataDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DataDir = filepath.Join(cwd, DefaultDataDirName)
		}
	}
	if cfg.DBPath == "" && cfg.DataDir != "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, storage.DBFileName)
	}
	cfg.normalize()

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	strs := []struct {
		key string
		dst *string
	}{
		{"DOCVAULT_API_URL", &c.APIURL},
		{"DOCVAULT_DATA_DIR", &c.DataDir},
		{"DOCVAULT_DB", &c.DBPath},
		{"DOCVAULT_LOG_LEVEL", &c.LogLevel},
		{"DOCVAULT_REMOTE_URL", &c.Remote.URL},
		{"DOCVAULT_REMOTE_USER", &c.Remote.User},
		{"DOCVAULT_REMOTE_PASSWORD", &c.Remote.Password},
	}
	for _, s := range strs {
		if v := strings.TrimSpace(os.Getenv(s.key)); v != "" {
			*s.dst = v
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DOCVAULT_KEEP_DELETED_MARKERS")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("DOCVAULT_KEEP_DELETED_MARKERS must be true or false")
		}
		c.Sync.KeepDeletedMarkers = parsed
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"DOCVAULT_LOCK_TIMEOUT", &c.LockTimeout},
		{"DOCVAULT_SYNC_LOCK_TIMEOUT", &c.Sync.LockTimeout},
	}
	for _, d := range durations {
		raw := strings.TrimSpace(os.Getenv(d.key))
		if raw == "" {
			continue
		}
		if err := d.dst.UnmarshalText([]byte(raw)); err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
	}
	return nil
}

func (c *Config) normalize() {
	def := Default()
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = def.LockTimeout
	}
	if c.Sync.LockTimeout <= 0 {
		c.Sync.LockTimeout = def.Sync.LockTimeout
	}
	if c.Remote.RetryAttempts <= 0 {
		c.Remote.RetryAttempts = def.Remote.RetryAttempts
	}
	if c.Remote.RetryTimeout <= 0 {
		c.Remote.RetryTimeout = def.Remote.RetryTimeout
	}
	if c.Remote.RetryPause < 0 {
		c.Remote.RetryPause = 0
	}
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "remote.retry_attempts":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "lock_timeout", "sync.lock_timeout", "remote.retry_timeout", "remote.retry_pause":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a duration such as 30s or 5m", key)
		}
		return parsed.String(), nil
	case "sync.keep_deleted_markers":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}
