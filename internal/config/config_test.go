// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.Viewport.Width)
	assert.Equal(t, 1080, cfg.Browser.Viewport.Height)
	assert.Equal(t, "en-US", cfg.Browser.Locale)
	assert.Equal(t, "America/New_York", cfg.Browser.Timezone)
	assert.Equal(t, 90*time.Second, cfg.Browser.DefaultTimeout)
	assert.Equal(t, 120*time.Second, cfg.Pacing.MinWait)
	assert.Equal(t, 180*time.Second, cfg.Pacing.MaxWait)
	assert.True(t, cfg.Session.Reuse)
	assert.Equal(t, 15, cfg.Session.MaxApplications)
	assert.Equal(t, 2*time.Hour, cfg.Session.MaxDuration)
	assert.Equal(t, "https://www.dice.com/dashboard/login", cfg.Site.LoginURL)

	require.Len(t, cfg.Site.EasyApplyLocators, 3)
	assert.Equal(t, "button[data-cy='apply-button-card']", cfg.Site.EasyApplyLocators[0].Selector)
	assert.Equal(t, "css", cfg.Site.EasyApplyLocators[0].Strategy)
	assert.Equal(t, "xpath", cfg.Site.EasyApplyLocators[1].Strategy)
	// Text fallbacks target the first matching button only.
	assert.Equal(t, "(//button[contains(normalize-space(.), 'Easy Apply')])[1]", cfg.Site.EasyApplyLocators[1].Selector)
	assert.Equal(t, "(//button[contains(normalize-space(.), 'Apply')])[1]", cfg.Site.EasyApplyLocators[2].Selector)
	assert.Equal(t, "button[data-testid='submit-application-button']", cfg.Site.SubmitButton.Selector)

	assert.Equal(t, 50*time.Second, cfg.Timeouts.PasswordInput)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.SignInButton)

	assert.NoError(t, cfg.Validate())
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("legacy environment names", func(t *testing.T) {
		t.Setenv("DICE_EMAIL", "user@example.com")
		t.Setenv("DICE_PASSWORD", "hunter2")
		t.Setenv("PORT", "8080")

		v := viper.New()
		SetDefaults(v)
		require.NoError(t, ConfigureEnv(v))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "user@example.com", cfg.Account.Email)
		assert.Equal(t, "hunter2", cfg.Account.Password)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.NoError(t, cfg.ValidateCredentials())
	})

	t.Run("prefixed environment wins over legacy", func(t *testing.T) {
		t.Setenv("AUTOAPPLY_ACCOUNT_EMAIL", "prefixed@example.com")
		t.Setenv("DICE_EMAIL", "legacy@example.com")

		v := viper.New()
		SetDefaults(v)
		require.NoError(t, ConfigureEnv(v))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "prefixed@example.com", cfg.Account.Email)
	})

	t.Run("debug mode forces a visible browser", func(t *testing.T) {
		t.Setenv("DEBUG_MODE", "true")

		v := viper.New()
		SetDefaults(v)
		require.NoError(t, ConfigureEnv(v))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.True(t, cfg.Browser.Debug)
		assert.False(t, cfg.Browser.Headless)
		assert.Equal(t, 10*time.Second, cfg.Browser.DebugHold)
	})

	t.Run("debug hold is dropped without debug mode", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Zero(t, cfg.Browser.DebugHold)
	})

	t.Run("bare numbers in the environment are seconds", func(t *testing.T) {
		t.Setenv("AUTOAPPLY_PACING_MIN_WAIT", "120")
		t.Setenv("AUTOAPPLY_PACING_MAX_WAIT", "180")
		t.Setenv("AUTOAPPLY_SESSION_MAX_DURATION", "7200")
		t.Setenv("AUTOAPPLY_TIMEOUTS_SIGN_IN_BUTTON", "2.5")

		v := viper.New()
		SetDefaults(v)
		require.NoError(t, ConfigureEnv(v))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 120*time.Second, cfg.Pacing.MinWait)
		assert.Equal(t, 180*time.Second, cfg.Pacing.MaxWait)
		assert.Equal(t, 2*time.Hour, cfg.Session.MaxDuration)
		assert.Equal(t, 2500*time.Millisecond, cfg.Timeouts.SignInButton)
	})

	t.Run("unit suffixed durations still parse", func(t *testing.T) {
		t.Setenv("AUTOAPPLY_PACING_MIN_WAIT", "90s")
		t.Setenv("AUTOAPPLY_SESSION_MAX_DURATION", "1h30m")

		v := viper.New()
		SetDefaults(v)
		require.NoError(t, ConfigureEnv(v))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, cfg.Pacing.MinWait)
		assert.Equal(t, 90*time.Minute, cfg.Session.MaxDuration)
	})

	t.Run("malformed duration is rejected", func(t *testing.T) {
		t.Setenv("AUTOAPPLY_PACING_MIN_WAIT", "two minutes")

		v := viper.New()
		SetDefaults(v)
		require.NoError(t, ConfigureEnv(v))

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pacing.min_wait")
	})

	t.Run("invalid configuration is rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("pacing.min_wait", "5m")
		v.Set("pacing.max_wait", "1m")

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pacing configuration invalid")
	})
}

func TestBindLegacyEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEBUG_MODE", "1")

	v := viper.New()
	require.NoError(t, BindLegacyEnv(v))

	assert.Equal(t, "9090", v.GetString("server.port"))
	assert.True(t, v.GetBool("browser.debug"))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"negative min wait", func(c *Config) { c.Pacing.MinWait = -time.Second }, "min_wait"},
		{"zero quota", func(c *Config) { c.Session.MaxApplications = 0 }, "max_applications"},
		{"zero max duration", func(c *Config) { c.Session.MaxDuration = 0 }, "max_duration"},
		{"empty user agent pool", func(c *Config) { c.Browser.UserAgents = nil }, "user_agents"},
		{"bad viewport", func(c *Config) { c.Browser.Viewport.Width = 0 }, "viewport"},
		{"negative humanoid scale", func(c *Config) { c.Humanoid.Scale = -1 }, "humanoid.scale"},
		{"no easy apply locators", func(c *Config) { c.Site.EasyApplyLocators = nil }, "easy_apply_locators"},
		{"rate limit without budget", func(c *Config) {
			c.Server.RateLimit.Enabled = true
			c.Server.RateLimit.Burst = 0
		}, "rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	cfg := NewDefaultConfig()
	err := cfg.ValidateCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DICE_EMAIL")

	cfg.Account.Email = "a@b.c"
	cfg.Account.Password = "pw"
	assert.NoError(t, cfg.ValidateCredentials())
}

func TestConfigFromYAML(t *testing.T) {
	yamlInput := `
logger:
  level: debug
pacing:
  min_wait: 1s
  max_wait: 2s
session:
  reuse: false
  max_duration: 3600
site:
  easy_apply_locators:
    - selector: "#apply"
      description: "apply by id"
      strategy: css
`
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yamlInput)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, time.Second, cfg.Pacing.MinWait)
	assert.Equal(t, 2*time.Second, cfg.Pacing.MaxWait)
	assert.False(t, cfg.Session.Reuse)
	assert.Equal(t, time.Hour, cfg.Session.MaxDuration)
	require.Len(t, cfg.Site.EasyApplyLocators, 1)
	assert.Equal(t, "#apply", cfg.Site.EasyApplyLocators[0].Selector)
	// Untouched sections keep their defaults.
	assert.Equal(t, 15, cfg.Session.MaxApplications)
}
