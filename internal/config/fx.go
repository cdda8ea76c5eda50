package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(NewConfig),
	fx.Provide(NewBookingConfigHolder),
)

// NewConfig loads the environment and refuses to start on invalid values.
func NewConfig() (Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
