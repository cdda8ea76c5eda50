package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/staybook/internal/brand"
	"github.com/smallbiznis/staybook/internal/writerlock"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BrandSettings is the brands.yml shape of one brand.
type BrandSettings struct {
	OperationMode string
	MinNights     int
	MaxNights     int
}

// BrandPolicy is the validated form of BrandSettings.
type BrandPolicy struct {
	Mode writerlock.OperationMode
	Stay brand.StayRule
}

type BookingConfig struct {
	Brands map[brand.Brand]BrandPolicy
}

func DefaultBookingConfig() BookingConfig {
	rules := brand.DefaultRules()
	return BookingConfig{
		Brands: map[brand.Brand]BrandPolicy{
			brand.COBNB:  {Mode: writerlock.ModeStandalone, Stay: rules[brand.COBNB]},
			brand.COLIVE: {Mode: writerlock.ModeStandalone, Stay: rules[brand.COLIVE]},
		},
	}
}

func (c BookingConfig) StayRules() map[brand.Brand]brand.StayRule {
	rules := make(map[brand.Brand]brand.StayRule, len(c.Brands))
	for b, p := range c.Brands {
		rules[b] = p.Stay
	}
	return rules
}

// Validate checks that every brand has a known mode and that stay ranges
// partition the night axis.
func (c BookingConfig) Validate() error {
	if len(c.Brands) == 0 {
		return errors.New("brands cannot be empty")
	}
	for b, p := range c.Brands {
		if _, ok := writerlock.DesignatedWriter(p.Mode); !ok {
			return fmt.Errorf("brand %s: %w: %q", b, writerlock.ErrUnknownMode, p.Mode)
		}
	}
	return brand.ValidatePartition(c.StayRules())
}

// BookingConfigHolder serves per-brand settings and swaps them atomically when
// brands.yml changes on disk.
type BookingConfigHolder struct {
	current atomic.Value // holds BookingConfig
	log     *zap.Logger
}

func NewBookingConfigHolder(cfg Config, log *zap.Logger) (*BookingConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	v := viper.New()

	if cfg.BookingConfigPath != "" {
		v.SetConfigFile(cfg.BookingConfigPath)
	} else {
		v.SetConfigName("brands")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/staybook")
		v.AddConfigPath(".")
	}

	// STAYBOOK_BRANDS_COBNB_OPERATION_MODE=integrated flips a single brand.
	v.SetEnvPrefix("STAYBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for b, p := range DefaultBookingConfig().Brands {
		key := "brands." + strings.ToLower(string(b))
		v.SetDefault(key+".operation_mode", string(p.Mode))
		v.SetDefault(key+".min_nights", p.Stay.MinNights)
		v.SetDefault(key+".max_nights", p.Stay.MaxNights)
	}

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	current, err := decodeBookingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &BookingConfigHolder{log: log.Named("booking-config")}
	holder.current.Store(current)

	if fileLoaded {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeBookingConfig(v)
			if err != nil {
				holder.log.Warn("invalid config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			holder.log.Info("reloaded", zap.String("file", e.Name), zap.Any("modes", updated.modes()))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticBookingConfigHolder builds a holder without a backing file.
func NewStaticBookingConfigHolder(cfg BookingConfig) (*BookingConfigHolder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	holder := &BookingConfigHolder{log: zap.NewNop()}
	holder.current.Store(cfg)
	return holder, nil
}

func (h *BookingConfigHolder) Get() BookingConfig {
	return h.current.Load().(BookingConfig)
}

// Swap installs cfg if it validates; the previous config stays active otherwise.
func (h *BookingConfigHolder) Swap(cfg BookingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.current.Store(cfg)
	return nil
}

func (h *BookingConfigHolder) ModeFor(b brand.Brand) (writerlock.OperationMode, bool) {
	p, ok := h.Get().Brands[b]
	if !ok {
		return "", false
	}
	return p.Mode, true
}

func (h *BookingConfigHolder) StayRule(b brand.Brand) (brand.StayRule, bool) {
	p, ok := h.Get().Brands[b]
	if !ok {
		return brand.StayRule{}, false
	}
	return p.Stay, true
}

func (c BookingConfig) modes() map[string]string {
	out := make(map[string]string, len(c.Brands))
	for b, p := range c.Brands {
		out[string(b)] = string(p.Mode)
	}
	return out
}

// decodeBookingConfig reads each brand key by key so env overrides and
// defaults apply per field instead of per map.
func decodeBookingConfig(v *viper.Viper) (BookingConfig, error) {
	raw := make(map[string]BrandSettings, len(brand.All()))
	for name := range v.GetStringMap("brands") {
		raw[name] = BrandSettings{}
	}
	for _, b := range brand.All() {
		raw[strings.ToLower(string(b))] = BrandSettings{}
	}
	for name := range raw {
		key := "brands." + name
		raw[name] = BrandSettings{
			OperationMode: v.GetString(key + ".operation_mode"),
			MinNights:     v.GetInt(key + ".min_nights"),
			MaxNights:     v.GetInt(key + ".max_nights"),
		}
	}
	return parseBrandSettings(raw)
}

func parseBrandSettings(raw map[string]BrandSettings) (BookingConfig, error) {
	cfg := BookingConfig{Brands: make(map[brand.Brand]BrandPolicy, len(raw))}
	for name, s := range raw {
		// viper lowercases map keys
		b, err := brand.Parse(name)
		if err != nil {
			return BookingConfig{}, fmt.Errorf("brands.%s: %w", name, err)
		}
		mode, err := writerlock.ParseMode(s.OperationMode)
		if err != nil {
			return BookingConfig{}, fmt.Errorf("brands.%s: %w", name, err)
		}
		cfg.Brands[b] = BrandPolicy{
			Mode: mode,
			Stay: brand.StayRule{MinNights: s.MinNights, MaxNights: s.MaxNights},
		}
	}
	if err := cfg.Validate(); err != nil {
		return BookingConfig{}, err
	}
	return cfg, nil
}
