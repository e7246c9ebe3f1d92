package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// DBPath is the SQLite database file holding recorded sites/resources.
	DBPath string `koanf:"db_path" validate:"required"`

	// SettingsPath is the settings database file.
	SettingsPath string `koanf:"settings_path" validate:"required"`

	// Listen is the host:port of the HTTP hook endpoint.
	Listen string `koanf:"listen" validate:"required,hostname_port"`

	// ReputationURL is the lookup endpoint of the reputation service.
	ReputationURL string `koanf:"reputation_url" validate:"omitempty,url"`

	// ReputationTimeoutSeconds bounds one reputation round trip.
	ReputationTimeoutSeconds int `koanf:"reputation_timeout_seconds" validate:"gte=1,lte=120"`

	// VerdictCacheSize bounds the reputation verdict cache.
	VerdictCacheSize int `koanf:"verdict_cache_size" validate:"gte=1"`

	// TaskQueueSize bounds the background recording/notification queue.
	TaskQueueSize int `koanf:"task_queue_size" validate:"gte=1"`

	// BloomFPRate is the target false-positive rate of the seen-resource
	// filter.
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"gt=0,lt=1"`

	// AllowUnverified keeps armed mode allowing known-but-unverified
	// records. Disable to fail closed.
	AllowUnverified bool `koanf:"allow_unverified"`

	// OwnOrigin is this tool's own URL prefix, always whitelisted.
	OwnOrigin string `koanf:"own_origin"`

	// BlockPageURL is the explanatory page for blocked navigations.
	BlockPageURL string `koanf:"block_page_url" validate:"required"`

	// FramePageURL is the placeholder page for blocked sub-frames.
	FramePageURL string `koanf:"frame_page_url" validate:"required"`
}

// DEFAULT_APP_CONFIG defines the default application configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:                      "prod",
	LogLevel:                 "info",
	DBPath:                   "/var/lib/surfguard/surfguard.db",
	SettingsPath:             "/var/lib/surfguard/settings.db",
	Listen:                   "127.0.0.1:8180",
	ReputationURL:            "https://sb-ssl.google.com/safebrowsing/api/lookup",
	ReputationTimeoutSeconds: 10,
	VerdictCacheSize:         65536,
	TaskQueueSize:            1024,
	BloomFPRate:              0.001,
	AllowUnverified:          true,
	OwnOrigin:                "",
	BlockPageURL:             "/pages/blocked.html",
	FramePageURL:             "/pages/blocked-frame.html",
}

// envLoader loads environment variables with the prefix "GUARD_",
// lowercasing keys and trimming the prefix. Mockable in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "GUARD_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "GUARD_"))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads default values via the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
