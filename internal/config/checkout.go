package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CheckoutConfig holds tunables that may change without a restart.
type CheckoutConfig struct {
	DefaultAmount                int64         `mapstructure:"defaultAmount"`
	ValidityWindow               time.Duration `mapstructure:"validityWindow"`
	WebhookLookupAttempts        uint          `mapstructure:"webhookLookupAttempts"`
	WebhookLookupInitialInterval time.Duration `mapstructure:"webhookLookupInitialInterval"`
	WebhookLookupMaxElapsed      time.Duration `mapstructure:"webhookLookupMaxElapsed"`
	HistoryPageLimit             int           `mapstructure:"historyPageLimit"`
	HistoryMaxLimit              int           `mapstructure:"historyMaxLimit"`
}

func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		DefaultAmount:                9900,
		ValidityWindow:               24 * time.Hour,
		WebhookLookupAttempts:        5,
		WebhookLookupInitialInterval: 100 * time.Millisecond,
		WebhookLookupMaxElapsed:      2 * time.Second,
		HistoryPageLimit:             10,
		HistoryMaxLimit:              100,
	}
}

type CheckoutConfigHolder struct {
	current atomic.Value // holds CheckoutConfig
}

// NewCheckoutConfigHolder reads checkout.yml from the usual locations and
// watches it for changes. A missing file means defaults.
func NewCheckoutConfigHolder(log *zap.Logger) (*CheckoutConfigHolder, error) {
	return LoadCheckoutConfig(log, "/var/lib/sitecraft/config", "/etc/sitecraft", ".")
}

func LoadCheckoutConfig(log *zap.Logger, paths ...string) (*CheckoutConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.checkout")

	v := viper.New()
	v.SetConfigName("checkout")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("SITECRAFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCheckoutConfig()
	v.SetDefault("checkout.defaultAmount", defaults.DefaultAmount)
	v.SetDefault("checkout.validityWindow", defaults.ValidityWindow)
	v.SetDefault("checkout.webhookLookupAttempts", defaults.WebhookLookupAttempts)
	v.SetDefault("checkout.webhookLookupInitialInterval", defaults.WebhookLookupInitialInterval)
	v.SetDefault("checkout.webhookLookupMaxElapsed", defaults.WebhookLookupMaxElapsed)
	v.SetDefault("checkout.historyPageLimit", defaults.HistoryPageLimit)
	v.SetDefault("checkout.historyMaxLimit", defaults.HistoryMaxLimit)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeCheckoutConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticCheckoutConfig(cfg)
	if !fileFound {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeCheckoutConfig(v)
		if err != nil {
			log.Warn("invalid checkout config ignored", zap.Error(err))
			return
		}
		holder.Set(updated)
		log.Info("checkout config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

// decodeCheckoutConfig starts from the defaults so a file only overrides the
// keys it names.
func decodeCheckoutConfig(v *viper.Viper) (CheckoutConfig, error) {
	cfg := DefaultCheckoutConfig()
	if err := v.UnmarshalKey("checkout", &cfg); err != nil {
		return CheckoutConfig{}, err
	}
	if err := validateCheckoutConfig(cfg); err != nil {
		return CheckoutConfig{}, err
	}
	return cfg, nil
}

// NewStaticCheckoutConfig returns a holder that never reloads.
func NewStaticCheckoutConfig(cfg CheckoutConfig) *CheckoutConfigHolder {
	holder := &CheckoutConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// Set swaps the active tunables. Callers validate first.
func (h *CheckoutConfigHolder) Set(cfg CheckoutConfig) {
	h.current.Store(cfg)
}

func (h *CheckoutConfigHolder) Get() CheckoutConfig {
	if h == nil {
		return DefaultCheckoutConfig()
	}
	cfg, ok := h.current.Load().(CheckoutConfig)
	if !ok {
		return DefaultCheckoutConfig()
	}
	return cfg
}

func validateCheckoutConfig(cfg CheckoutConfig) error {
	if cfg.DefaultAmount <= 0 {
		return errors.New("checkout.defaultAmount must be positive")
	}
	if cfg.ValidityWindow <= 0 {
		return errors.New("checkout.validityWindow must be positive")
	}
	if cfg.WebhookLookupAttempts == 0 {
		return errors.New("checkout.webhookLookupAttempts must be positive")
	}
	if cfg.WebhookLookupInitialInterval <= 0 || cfg.WebhookLookupMaxElapsed <= 0 {
		return errors.New("checkout.webhookLookup intervals must be positive")
	}
	if cfg.HistoryPageLimit <= 0 || cfg.HistoryMaxLimit < cfg.HistoryPageLimit {
		return errors.New("checkout.historyPageLimit must be positive and within historyMaxLimit")
	}
	return nil
}
