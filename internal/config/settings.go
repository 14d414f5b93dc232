package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"trafficwatch/internal/support"
)

type Config struct {
	Geolocation GeolocationConfig `json:"geolocation"`

	RateLimit struct {
		Backend string               `json:"backend"`
		Groups  map[string]RateGroup `json:"groups"`
	} `json:"rate_limit"`

	Interceptor struct {
		IgnoreForwardedHeader bool   `json:"ignore_forwarded_header"`
		LogTimeoutSeconds     uint32 `json:"log_timeout_seconds"`
	} `json:"interceptor"`

	Anomaly AnomalyConfig `json:"anomaly"`
}

type GeolocationConfig struct {
	// Provider is either "ip-api" or "geolite".
	Provider       string `json:"provider"`
	Endpoint       string `json:"endpoint"`
	GeoLiteDBPath  string `json:"geolite_db_path"`
	TimeoutSeconds uint32 `json:"timeout_seconds"`
	// GeoLiteUpdateTimer is how often the GeoLite file is re-downloaded.
	GeoLiteUpdateTimer Timer `json:"geolite_update_timer"`

	// Cache is either "redis" or "memory".
	Cache              string `json:"cache"`
	CacheTimer         Timer  `json:"cache_timer"`
	NegativeCacheTimer Timer  `json:"negative_cache_timer"`
}

// RateGroup describes one named rate-limit bucket. Rates use the
// "<count>/<unit>" notation, e.g. "5/m".
type RateGroup struct {
	Methods       []string `json:"methods"`
	Authenticated string   `json:"authenticated"`
	Anonymous     string   `json:"anonymous"`
	Message       string   `json:"message"`
}

type AnomalyConfig struct {
	Window           Timer    `json:"window"`
	RequestThreshold int64    `json:"request_threshold"`
	SensitivePaths   []string `json:"sensitive_paths"`
	// Precedence is "combined" or "last_wins".
	Precedence string `json:"precedence"`
	ScanTimer  Timer  `json:"scan_timer"`
}

const defaultSettingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex

	InProductionMode bool
)

func init() {
	cfg, err := parseConfig(defaultConfig)
	if err != nil {
		cfg = Config{}
	}
	configValue.Store(cfg)
}

func settingsFilePath() string {
	return support.GetEnv("SETTINGS_PATH", defaultSettingsFilePath)
}

// DefaultConfig returns the embedded defaults.
func DefaultConfig() Config {
	cfg, err := parseConfig(defaultConfig)
	if err != nil {
		log.Error("Error parsing embedded default settings", "error", err)
		return Config{}
	}
	return cfg
}

func ReadSettings() {
	path := settingsFilePath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration", "path", path)

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				log.Error("Error creating directory for settings file", "error", err)
				return
			}

			if err := os.WriteFile(path, defaultConfig, 0o644); err != nil {
				log.Error("Error writing default settings file", "error", err)
				return
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file", "error", err)
			return
		}
	}

	newConfig, err := parseConfig(data)
	if err != nil {
		log.Error("Error unmarshalling settings file", "error", err)
		return
	}

	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "file"}); err != nil {
		log.Error("Error applying configuration from settings file", "error", err)
		return
	}

	log.Debug("Settings file loaded successfully", "path", path)
}

func SetConfig(newConfig Config) {
	if err := applyConfigUpdate(withDefaults(newConfig), configUpdateOptions{persistToFile: true, broadcast: true, source: "local"}); err != nil {
		log.Error("Error applying configuration update", "error", err)
		return
	}

	log.Debug("Configuration updated and written to file successfully")
}

type configUpdateOptions struct {
	persistToFile bool
	broadcast     bool
	source        string
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)
	SetBetweenTime()

	var errs []error

	if opts.persistToFile {
		data, err := json.MarshalIndent(newConfig, "", "  ")
		if err != nil {
			log.Error("Error marshalling new configuration", "error", err)
			errs = append(errs, err)
		} else if err := os.WriteFile(settingsFilePath(), data, 0o644); err != nil {
			log.Error("Error writing new configuration to file", "error", err)
			errs = append(errs, err)
		}
	}

	if opts.broadcast {
		payload, err := json.Marshal(newConfig)
		if err != nil {
			log.Error("Error serializing configuration for broadcast", "error", err)
			errs = append(errs, err)
		} else if err := broadcastConfigUpdate(payload); err != nil {
			log.Error("Error broadcasting configuration update", "error", err)
			errs = append(errs, err)
		}
	}

	if opts.source != "" {
		log.Debug("Configuration applied", "source", opts.source)
	} else {
		log.Debug("Configuration applied")
	}

	return errors.Join(errs...)
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

func SetProductionMode(productionMode bool) {
	InProductionMode = productionMode
}

func parseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return withDefaults(cfg), nil
}

// withDefaults fills every unset field so a partial settings file still
// yields a usable configuration.
func withDefaults(cfg Config) Config {
	geo := &cfg.Geolocation
	if geo.Provider == "" {
		geo.Provider = "ip-api"
	}
	if geo.Endpoint == "" {
		geo.Endpoint = "http://ip-api.com/json"
	}
	geo.Endpoint = strings.TrimRight(geo.Endpoint, "/")
	if geo.TimeoutSeconds == 0 {
		geo.TimeoutSeconds = 3
	}
	if geo.Cache == "" {
		geo.Cache = "redis"
	}
	if geo.CacheTimer.IsZero() {
		geo.CacheTimer = Timer{Hours: 24}
	}
	if geo.GeoLiteUpdateTimer.IsZero() {
		geo.GeoLiteUpdateTimer = Timer{Days: 1}
	}

	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "redis"
	}
	if len(cfg.RateLimit.Groups) == 0 {
		cfg.RateLimit.Groups = map[string]RateGroup{
			"login": {
				Methods:       []string{"POST"},
				Authenticated: "10/m",
				Anonymous:     "5/m",
				Message:       "Too many login attempts. Please try again later.",
			},
			"geo-test": {
				Authenticated: "10/m",
				Anonymous:     "5/m",
				Message:       "Rate limit exceeded. Please try again later.",
			},
		}
	}

	if cfg.Interceptor.LogTimeoutSeconds == 0 {
		cfg.Interceptor.LogTimeoutSeconds = 5
	}

	anomaly := &cfg.Anomaly
	if anomaly.Window.IsZero() {
		anomaly.Window = Timer{Hours: 1}
	}
	if anomaly.RequestThreshold <= 0 {
		anomaly.RequestThreshold = 100
	}
	if anomaly.SensitivePaths == nil {
		anomaly.SensitivePaths = []string{"/admin/", "/login/"}
	}
	if anomaly.Precedence == "" {
		anomaly.Precedence = "combined"
	}
	if anomaly.ScanTimer.IsZero() {
		anomaly.ScanTimer = Timer{Hours: 1}
	}

	return cfg
}
