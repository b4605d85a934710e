package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/address-helper/pkg/egrn"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, egrn.DefaultTemplate, cfg.EGRN.URLTemplate)
	assert.Equal(t, 2, cfg.EGRN.RequestLimit)
	assert.InDelta(t, 1.0, cfg.EGRN.RequestDelaySecs, 0.001)
	assert.Equal(t, 30, cfg.EGRN.TimeoutSecs)
	assert.Contains(t, cfg.EGRN.UserAgent, "address-helper/")
	assert.False(t, cfg.EGRN.InsecureSkipVerify)
	assert.False(t, cfg.Tags.RecordRawAddress)
	assert.Equal(t, "addr:RU:egrn", cfg.Tags.RawAddressKey)
	assert.Equal(t, "ЕГРН", cfg.Tags.SourceValue)
	assert.True(t, cfg.Tags.ClearDoubles)
	assert.Equal(t, DoublePolicyDropAll, cfg.Tags.DoublePolicy)
	assert.Empty(t, cfg.Patterns.HousePath)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "address-helper.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 60, cfg.Overpass.TimeoutSecs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)

	assert.Equal(t, time.Second, cfg.EGRN.RequestDelay())
	assert.Equal(t, 30*time.Second, cfg.EGRN.Timeout())
	assert.Equal(t, time.Minute, cfg.Overpass.Timeout())
	assert.Equal(t, 120, cfg.Import.TimeoutSecs)
	assert.Equal(t, 2*time.Minute, cfg.Import.Timeout())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
egrn:
  request_limit: 5
  request_delay_secs: 0.5
tags:
  record_raw_address: true
  double_policy: keep_first
store:
  driver: postgres
  database_url: postgres://localhost/osm
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.EGRN.RequestLimit)
	assert.Equal(t, 500*time.Millisecond, cfg.EGRN.RequestDelay())
	assert.True(t, cfg.Tags.RecordRawAddress)
	assert.Equal(t, DoublePolicyKeepFirst, cfg.Tags.DoublePolicy)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/osm", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.EGRN.TimeoutSecs)
	assert.Equal(t, "addr:RU:egrn", cfg.Tags.RawAddressKey)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ADDRHELPER_STORE_DRIVER", "sqlite")
	t.Setenv("ADDRHELPER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ADDRHELPER_EGRN_REQUEST_LIMIT", "4")
	t.Setenv("ADDRHELPER_PATTERNS_HOUSE_PATH", "/etc/house.json")
	t.Setenv("ADDRHELPER_EGRN_INSECURE_SKIP_VERIFY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.EGRN.RequestLimit)
	assert.Equal(t, "/etc/house.json", cfg.Patterns.HousePath)
	assert.True(t, cfg.EGRN.InsecureSkipVerify)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("egrn: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.EGRN.URLTemplate = egrn.DefaultTemplate
	cfg.EGRN.RequestLimit = 2
	cfg.EGRN.RequestDelaySecs = 1
	cfg.EGRN.TimeoutSecs = 30
	cfg.Tags.RawAddressKey = "addr:RU:egrn"
	cfg.Tags.DoublePolicy = DoublePolicyDropAll
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "address-helper.db"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateEnrich_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate(ModeEnrich))
}

func TestValidateEnrich_ZeroDelayAllowed(t *testing.T) {
	cfg := validDefaults()
	cfg.EGRN.RequestDelaySecs = 0
	assert.NoError(t, cfg.Validate(ModeEnrich))
}

func TestValidateEnrich_Invalid(t *testing.T) {
	cfg := validDefaults()
	cfg.EGRN.RequestLimit = 0
	cfg.EGRN.RequestDelaySecs = -1
	cfg.EGRN.URLTemplate = "https://example.com/?q={lat}"
	cfg.Tags.DoublePolicy = "keep_last"

	err := cfg.Validate(ModeEnrich)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "egrn.request_limit must be >= 1")
	assert.Contains(t, err.Error(), "egrn.request_delay_secs must be >= 0")
	assert.Contains(t, err.Error(), "egrn.url_template")
	assert.Contains(t, err.Error(), "tags.double_policy")
}

func TestValidateEnrich_RawKeyRequired(t *testing.T) {
	cfg := validDefaults()
	cfg.Tags.RecordRawAddress = true
	cfg.Tags.RawAddressKey = ""

	err := cfg.Validate(ModeEnrich)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tags.raw_address_key is required")
}

func TestValidateStore_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate(ModeStore)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate(ModeServe))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate(ModeServe)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
