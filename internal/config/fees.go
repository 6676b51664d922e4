package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FeeSettings is the platform-wide default fee policy.
type FeeSettings struct {
	FeeBps        int64  `mapstructure:"feeBps"`
	FeeFixedCents int64  `mapstructure:"feeFixedCents"`
	DefaultMode   string `mapstructure:"defaultMode"`
}

func DefaultFeeSettings() FeeSettings {
	return FeeSettings{
		FeeBps:        800,
		FeeFixedCents: 30,
		DefaultMode:   "ADDED",
	}
}

type FeeSettingsHolder struct {
	current atomic.Value // holds FeeSettings
}

// NewStaticFeeSettingsHolder returns a holder that never reloads.
func NewStaticFeeSettingsHolder(settings FeeSettings) *FeeSettingsHolder {
	holder := &FeeSettingsHolder{}
	holder.current.Store(settings)
	return holder
}

func NewFeeSettingsHolder(cfg Config, log *zap.Logger) (*FeeSettingsHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.fees")

	v := viper.New()

	if cfg.FeesConfigPath != "" {
		v.SetConfigFile(cfg.FeesConfigPath)
	} else {
		v.SetConfigName("fees")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/railzway/config")
		v.AddConfigPath("/etc/railzway")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RAILZWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultFeeSettings()
	v.SetDefault("fees.feeBps", defaults.FeeBps)
	v.SetDefault("fees.feeFixedCents", defaults.FeeFixedCents)
	v.SetDefault("fees.defaultMode", defaults.DefaultMode)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	settings, err := decodeFeeSettings(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticFeeSettingsHolder(settings)

	if fileLoaded {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeFeeSettings(v)
			if err != nil {
				log.Warn("fee settings reload ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("fee settings reloaded",
				zap.String("file", e.Name),
				zap.Int64("fee_bps", updated.FeeBps),
				zap.Int64("fee_fixed_cents", updated.FeeFixedCents),
			)
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *FeeSettingsHolder) Get() FeeSettings {
	return h.current.Load().(FeeSettings)
}

func decodeFeeSettings(v *viper.Viper) (FeeSettings, error) {
	// Keys are read one by one so partial files still fall back to defaults.
	settings := FeeSettings{
		FeeBps:        v.GetInt64("fees.feeBps"),
		FeeFixedCents: v.GetInt64("fees.feeFixedCents"),
		DefaultMode:   strings.ToUpper(strings.TrimSpace(v.GetString("fees.defaultMode"))),
	}
	if err := validateFeeSettings(settings); err != nil {
		return FeeSettings{}, err
	}
	return settings, nil
}

func validateFeeSettings(settings FeeSettings) error {
	if settings.FeeBps < 0 || settings.FeeBps > 10_000 {
		return errors.New("fees.feeBps must be between 0 and 10000")
	}
	if settings.FeeFixedCents < 0 {
		return errors.New("fees.feeFixedCents cannot be negative")
	}
	switch settings.DefaultMode {
	case "ADDED", "INCLUDED":
	default:
		return errors.New("fees.defaultMode must be ADDED or INCLUDED")
	}
	return nil
}
