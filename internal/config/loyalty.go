package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LoyaltyConfig tunes the earn and redemption policy. It lives in a YAML file
// so operators can adjust bonuses without a deploy.
type LoyaltyConfig struct {
	ReviewBonusPoints   int64 `mapstructure:"reviewBonusPoints"`
	VisitBonusPoints    int64 `mapstructure:"visitBonusPoints"`
	VoucherValidityDays int   `mapstructure:"voucherValidityDays"`
}

func DefaultLoyaltyConfig() LoyaltyConfig {
	return LoyaltyConfig{
		ReviewBonusPoints:   25,
		VisitBonusPoints:    10,
		VoucherValidityDays: 30,
	}
}

// LoyaltyConfigHolder exposes the current policy and hot-reloads it when the
// backing file changes.
type LoyaltyConfigHolder struct {
	current atomic.Value // holds LoyaltyConfig
}

func NewLoyaltyConfigHolder() (*LoyaltyConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("loyalty")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/canje/config") // Volume-mounted config
	v.AddConfigPath("/etc/canje")            // System config
	v.AddConfigPath(".")                     // Current directory (dev mode)

	v.SetEnvPrefix("CANJE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultLoyaltyConfig()
		v.SetDefault("loyalty.reviewBonusPoints", defaults.ReviewBonusPoints)
		v.SetDefault("loyalty.visitBonusPoints", defaults.VisitBonusPoints)
		v.SetDefault("loyalty.voucherValidityDays", defaults.VoucherValidityDays)
	}

	var cfg LoyaltyConfig
	if err := v.UnmarshalKey("loyalty", &cfg); err != nil {
		return nil, err
	}
	if err := validateLoyaltyConfig(cfg); err != nil {
		return nil, err
	}

	holder := &LoyaltyConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(fsnotify.Event) {
		var next LoyaltyConfig
		if err := v.UnmarshalKey("loyalty", &next); err != nil {
			log.Printf("loyalty config reload failed: %v", err)
			return
		}
		if err := validateLoyaltyConfig(next); err != nil {
			log.Printf("loyalty config reload rejected: %v", err)
			return
		}
		holder.current.Store(next)
	})

	return holder, nil
}

// Current returns the active loyalty policy.
func (h *LoyaltyConfigHolder) Current() LoyaltyConfig {
	if h == nil {
		return DefaultLoyaltyConfig()
	}
	if cfg, ok := h.current.Load().(LoyaltyConfig); ok {
		return cfg
	}
	return DefaultLoyaltyConfig()
}

func validateLoyaltyConfig(cfg LoyaltyConfig) error {
	if cfg.ReviewBonusPoints < 0 || cfg.VisitBonusPoints < 0 {
		return errors.New("loyalty bonus points must not be negative")
	}
	if cfg.VoucherValidityDays <= 0 {
		return errors.New("loyalty voucherValidityDays must be positive")
	}
	return nil
}
