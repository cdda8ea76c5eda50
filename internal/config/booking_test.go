package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smallbiznis/staybook/internal/brand"
	"github.com/smallbiznis/staybook/internal/writerlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBrandsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "brands.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write brands file: %v", err)
	}
	return path
}

func TestBookingConfigHolderReadsFile(t *testing.T) {
	path := writeBrandsFile(t, `
brands:
  COBNB:
    operation_mode: integrated
    min_nights: 1
    max_nights: 27
  COLIVE:
    operation_mode: standalone
    min_nights: 28
    max_nights: 365
`)

	holder, err := NewBookingConfigHolder(Config{BookingConfigPath: path}, nil)
	require.NoError(t, err)

	mode, ok := holder.ModeFor(brand.COBNB)
	require.True(t, ok)
	assert.Equal(t, writerlock.ModeIntegrated, mode)

	mode, ok = holder.ModeFor(brand.COLIVE)
	require.True(t, ok)
	assert.Equal(t, writerlock.ModeStandalone, mode)

	rule, ok := holder.StayRule(brand.COLIVE)
	require.True(t, ok)
	assert.Equal(t, brand.StayRule{MinNights: 28, MaxNights: 365}, rule)
}

func TestBookingConfigHolderRejectsUnknownMode(t *testing.T) {
	path := writeBrandsFile(t, `
brands:
  cobnb:
    operation_mode: hybrid
    min_nights: 1
    max_nights: 27
  colive:
    operation_mode: standalone
    min_nights: 28
    max_nights: 365
`)

	_, err := NewBookingConfigHolder(Config{BookingConfigPath: path}, nil)
	assert.ErrorIs(t, err, writerlock.ErrUnknownMode)
}

func TestBookingConfigHolderRejectsGap(t *testing.T) {
	path := writeBrandsFile(t, `
brands:
  cobnb:
    operation_mode: standalone
    min_nights: 1
    max_nights: 20
  colive:
    operation_mode: standalone
    min_nights: 28
    max_nights: 365
`)

	_, err := NewBookingConfigHolder(Config{BookingConfigPath: path}, nil)
	assert.ErrorContains(t, err, "gap")
}

func TestBookingConfigHolderSwapKeepsValidConfig(t *testing.T) {
	holder, err := NewStaticBookingConfigHolder(DefaultBookingConfig())
	require.NoError(t, err)

	next := DefaultBookingConfig()
	next.Brands[brand.COBNB] = BrandPolicy{Mode: writerlock.ModeIntegrated, Stay: next.Brands[brand.COBNB].Stay}
	require.NoError(t, holder.Swap(next))

	mode, _ := holder.ModeFor(brand.COBNB)
	assert.Equal(t, writerlock.ModeIntegrated, mode)

	broken := DefaultBookingConfig()
	broken.Brands[brand.COBNB] = BrandPolicy{Mode: "hybrid", Stay: broken.Brands[brand.COBNB].Stay}
	assert.Error(t, holder.Swap(broken))

	mode, _ = holder.ModeFor(brand.COBNB)
	assert.Equal(t, writerlock.ModeIntegrated, mode)
}

func TestValidateRequiresRole(t *testing.T) {
	cfg := Config{
		Idempotency:    IdempotencyConfig{Backend: IdempotencyBackendMemory, TTL: 1, LockTTL: 1},
		ChannelManager: ChannelManagerConfig{Driver: ChannelManagerDriverSandbox, Timeout: 1},
		Events:         EventsConfig{Driver: EventsDriverLog},
	}
	assert.Error(t, cfg.Validate())

	cfg.Role = "adapter"
	assert.NoError(t, cfg.Validate())

	cfg.ChannelManager.Driver = ChannelManagerDriverHTTP
	assert.Error(t, cfg.Validate())
}

func TestBookingConfigHolderEnvOverride(t *testing.T) {
	t.Setenv("STAYBOOK_BRANDS_COBNB_OPERATION_MODE", "integrated")

	holder, err := NewBookingConfigHolder(Config{}, nil)
	require.NoError(t, err)

	mode, _ := holder.ModeFor(brand.COBNB)
	assert.Equal(t, writerlock.ModeIntegrated, mode)
	mode, _ = holder.ModeFor(brand.COLIVE)
	assert.Equal(t, writerlock.ModeStandalone, mode)
}

func TestLoadRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_WEBHOOK_RATE", "2.5")
	t.Setenv("RATE_LIMIT_WEBHOOK_BURST", "0")

	cfg := Load()
	cfg.Role = "adapter"
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 2.5, cfg.RateLimit.WebhookRate)
	assert.Error(t, cfg.Validate())

	cfg.RateLimit.WebhookBurst = 5
	assert.NoError(t, cfg.Validate())
}
