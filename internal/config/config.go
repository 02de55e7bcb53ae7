// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key when read from the environment,
// e.g. AUTOAPPLY_PACING_MIN_WAIT.
const EnvPrefix = "AUTOAPPLY"

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Account   AccountConfig   `mapstructure:"account" yaml:"account"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Humanoid  HumanoidConfig  `mapstructure:"humanoid" yaml:"humanoid"`
	Pacing    PacingConfig    `mapstructure:"pacing" yaml:"pacing"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Service   ServiceConfig   `mapstructure:"service" yaml:"service"`
	Site      SiteConfig      `mapstructure:"site" yaml:"site"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts" yaml:"timeouts"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Port            int             `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout" yaml:"read_timeout"`
	IdleTimeout     time.Duration   `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig throttles the apply endpoint independently of human pacing.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int  `mapstructure:"burst" yaml:"burst"`
}

// AccountConfig holds the career site credentials.
type AccountConfig struct {
	Email    string `mapstructure:"email" yaml:"email"`
	Password string `mapstructure:"password" yaml:"-"`
}

// BrowserConfig holds settings for the Chromium instance.
type BrowserConfig struct {
	Headless       bool           `mapstructure:"headless" yaml:"headless"`
	Debug          bool           `mapstructure:"debug" yaml:"debug"`
	DebugHold      time.Duration  `mapstructure:"debug_hold" yaml:"debug_hold"`
	ExecPath       string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args           []string       `mapstructure:"args" yaml:"args"`
	UserAgents     []string       `mapstructure:"user_agents" yaml:"user_agents"`
	Locale         string         `mapstructure:"locale" yaml:"locale"`
	Timezone       string         `mapstructure:"timezone" yaml:"timezone"`
	Viewport       ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	DefaultTimeout time.Duration  `mapstructure:"default_timeout" yaml:"default_timeout"`
	PostLoadWait   time.Duration  `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// ViewportConfig is the emulated window size.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// HumanoidConfig tunes the human pacing simulation. Scale multiplies the
// random part of every pause, which still stays within its range; a disabled
// humanoid never pauses.
type HumanoidConfig struct {
	Enabled bool    `mapstructure:"enabled" yaml:"enabled"`
	Scale   float64 `mapstructure:"scale" yaml:"scale"`
}

// PacingConfig bounds the randomized wait enforced between applications.
type PacingConfig struct {
	MinWait time.Duration `mapstructure:"min_wait" yaml:"min_wait"`
	MaxWait time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
}

// SessionConfig drives the session lifecycle policy.
type SessionConfig struct {
	Reuse           bool          `mapstructure:"reuse" yaml:"reuse"`
	MaxApplications int           `mapstructure:"max_applications" yaml:"max_applications"`
	MaxDuration     time.Duration `mapstructure:"max_duration" yaml:"max_duration"`
}

// ServiceConfig controls how overlapping apply requests are handled.
type ServiceConfig struct {
	RejectConcurrent bool `mapstructure:"reject_concurrent" yaml:"reject_concurrent"`
}

// LocatorConfig is one way of finding a UI element.
type LocatorConfig struct {
	Selector    string `mapstructure:"selector" yaml:"selector"`
	Description string `mapstructure:"description" yaml:"description"`
	Strategy    string `mapstructure:"strategy" yaml:"strategy"`
}

// SiteConfig describes the target career site.
type SiteConfig struct {
	LoginURL          string          `mapstructure:"login_url" yaml:"login_url"`
	LoginSuccessMarks []string        `mapstructure:"login_success_marks" yaml:"login_success_marks"`
	EmailInput        LocatorConfig   `mapstructure:"email_input" yaml:"email_input"`
	ContinueButton    LocatorConfig   `mapstructure:"continue_button" yaml:"continue_button"`
	PasswordInput     LocatorConfig   `mapstructure:"password_input" yaml:"password_input"`
	SignInButton      LocatorConfig   `mapstructure:"sign_in_button" yaml:"sign_in_button"`
	EasyApplyLocators []LocatorConfig `mapstructure:"easy_apply_locators" yaml:"easy_apply_locators"`
	NextButton        LocatorConfig   `mapstructure:"next_button" yaml:"next_button"`
	SubmitButton      LocatorConfig   `mapstructure:"submit_button" yaml:"submit_button"`
}

// TimeoutsConfig holds the per-step bounds. They are the only bound on
// worst-case request latency.
type TimeoutsConfig struct {
	Navigation       time.Duration `mapstructure:"navigation" yaml:"navigation"`
	PageLoad         time.Duration `mapstructure:"page_load" yaml:"page_load"`
	EmailInput       time.Duration `mapstructure:"email_input" yaml:"email_input"`
	ContinueButton   time.Duration `mapstructure:"continue_button" yaml:"continue_button"`
	PasswordInput    time.Duration `mapstructure:"password_input" yaml:"password_input"`
	SignInButton     time.Duration `mapstructure:"sign_in_button" yaml:"sign_in_button"`
	EasyApplyVisible time.Duration `mapstructure:"easy_apply_visible" yaml:"easy_apply_visible"`
	EasyApplyEnabled time.Duration `mapstructure:"easy_apply_enabled" yaml:"easy_apply_enabled"`
	Click            time.Duration `mapstructure:"click" yaml:"click"`
	NextButton       time.Duration `mapstructure:"next_button" yaml:"next_button"`
	SubmitButton     time.Duration `mapstructure:"submit_button" yaml:"submit_button"`
}

// ArtifactsConfig controls where diagnostic screenshots land.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autoapply")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Server --
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.requests_per_minute", 30)
	v.SetDefault("server.rate_limit.burst", 5)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.debug_hold", "10s")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	})
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "America/New_York")
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)
	v.SetDefault("browser.default_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")

	// -- Humanoid --
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.scale", 1.0)

	// -- Pacing --
	v.SetDefault("pacing.min_wait", "120s")
	v.SetDefault("pacing.max_wait", "180s")

	// -- Session --
	v.SetDefault("session.reuse", true)
	v.SetDefault("session.max_applications", 15)
	v.SetDefault("session.max_duration", "2h")

	// -- Service --
	v.SetDefault("service.reject_concurrent", false)

	// -- Site --
	v.SetDefault("site.login_url", "https://www.dice.com/dashboard/login")
	v.SetDefault("site.login_success_marks", []string{"dashboard", "jobs"})
	v.SetDefault("site.email_input", map[string]string{
		"selector": "input[type='email']", "description": "email input", "strategy": "css",
	})
	v.SetDefault("site.continue_button", map[string]string{
		"selector": "button[data-testid='sign-in-button']", "description": "continue button", "strategy": "css",
	})
	v.SetDefault("site.password_input", map[string]string{
		"selector": "input[type='password']", "description": "password input", "strategy": "css",
	})
	v.SetDefault("site.sign_in_button", map[string]string{
		"selector": "button[data-testid='submit-password']", "description": "sign in button", "strategy": "css",
	})
	v.SetDefault("site.easy_apply_locators", []map[string]string{
		{"selector": "button[data-cy='apply-button-card']", "description": "apply button card", "strategy": "css"},
		{"selector": "(//button[contains(normalize-space(.), 'Easy Apply')])[1]", "description": "Easy Apply text", "strategy": "xpath"},
		{"selector": "(//button[contains(normalize-space(.), 'Apply')])[1]", "description": "Apply text", "strategy": "xpath"},
	})
	v.SetDefault("site.next_button", map[string]string{
		"selector": "button[data-testid='bottom-apply-next-button']", "description": "next button", "strategy": "css",
	})
	v.SetDefault("site.submit_button", map[string]string{
		"selector": "button[data-testid='submit-application-button']", "description": "submit button", "strategy": "css",
	})

	// -- Timeouts --
	v.SetDefault("timeouts.navigation", "90s")
	v.SetDefault("timeouts.page_load", "60s")
	v.SetDefault("timeouts.email_input", "30s")
	v.SetDefault("timeouts.continue_button", "30s")
	v.SetDefault("timeouts.password_input", "50s")
	v.SetDefault("timeouts.sign_in_button", "30s")
	v.SetDefault("timeouts.easy_apply_visible", "20s")
	v.SetDefault("timeouts.easy_apply_enabled", "10s")
	v.SetDefault("timeouts.click", "15s")
	v.SetDefault("timeouts.next_button", "30s")
	v.SetDefault("timeouts.submit_button", "30s")

	// -- Artifacts --
	v.SetDefault("artifacts.dir", "screenshots")
}

// legacyEnv maps configuration keys to the environment variable names the
// service historically used alongside the prefixed ones.
var legacyEnv = []struct {
	key string
	env string
}{
	{"account.email", "DICE_EMAIL"},
	{"account.password", "DICE_PASSWORD"},
	{"server.port", "PORT"},
	{"browser.debug", "DEBUG_MODE"},
}

// BindLegacyEnv binds the historical environment variable names alongside the
// prefixed ones.
func BindLegacyEnv(v *viper.Viper) error {
	var errs []error
	for _, b := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(b.key, ".", "_"))
		if err := v.BindEnv(b.key, prefixed, b.env); err != nil {
			errs = append(errs, fmt.Errorf("failed to bind env %s for %s: %w", b.env, b.key, err))
		}
	}
	return errors.Join(errs...)
}

// ConfigureEnv wires the prefixed environment lookup onto v.
func ConfigureEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return BindLegacyEnv(v)
}

var durationType = reflect.TypeOf(time.Duration(0))

// decodeHook extends viper's default hooks so a bare number given for a
// duration is read as seconds (AUTOAPPLY_PACING_MIN_WAIT=120).
func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

func secondsToDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != durationType || f == durationType {
			return data, nil
		}
		var secs float64
		switch f.Kind() {
		case reflect.String:
			n, err := strconv.ParseFloat(strings.TrimSpace(reflect.ValueOf(data).String()), 64)
			if err != nil {
				// Let the duration hook parse "90s" and report real garbage.
				return data, nil
			}
			secs = n
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			secs = float64(reflect.ValueOf(data).Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			secs = float64(reflect.ValueOf(data).Uint())
		case reflect.Float32, reflect.Float64:
			secs = reflect.ValueOf(data).Float()
		default:
			return data, nil
		}
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return nil, fmt.Errorf("invalid duration %v", data)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.applyDebugMode()

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyDebugMode makes the browser visible when debugging. The hold period is
// only meaningful for a visible browser, so it is zeroed otherwise.
func (c *Config) applyDebugMode() {
	if c.Browser.Debug {
		c.Browser.Headless = false
		return
	}
	c.Browser.DebugHold = 0
}

func (c *Config) expandPaths() error {
	dir, err := homedir.Expand(c.Artifacts.Dir)
	if err != nil {
		return fmt.Errorf("failed to expand artifacts.dir %q: %w", c.Artifacts.Dir, err)
	}
	c.Artifacts.Dir = dir

	if c.Logger.LogFile != "" {
		logFile, err := homedir.Expand(c.Logger.LogFile)
		if err != nil {
			return fmt.Errorf("failed to expand logger.log_file %q: %w", c.Logger.LogFile, err)
		}
		c.Logger.LogFile = logFile
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if err := c.Pacing.Validate(); err != nil {
		return fmt.Errorf("pacing configuration invalid: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session configuration invalid: %w", err)
	}
	if len(c.Browser.UserAgents) == 0 {
		return fmt.Errorf("browser.user_agents must contain at least one entry")
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport dimensions must be positive")
	}
	if c.Humanoid.Scale < 0 {
		return fmt.Errorf("humanoid.scale must not be negative")
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.RequestsPerMinute <= 0 || c.Server.RateLimit.Burst <= 0) {
		return fmt.Errorf("server.rate_limit requires positive requests_per_minute and burst")
	}
	if len(c.Site.EasyApplyLocators) == 0 {
		return fmt.Errorf("site.easy_apply_locators must contain at least one locator")
	}
	return nil
}

// ValidateCredentials is separate from Validate so that commands which never
// log in (version, health checks in tests) don't require secrets.
func (c *Config) ValidateCredentials() error {
	if c.Account.Email == "" || c.Account.Password == "" {
		return fmt.Errorf("account.email and account.password are required. Set DICE_EMAIL and DICE_PASSWORD")
	}
	return nil
}

// Validate checks the pacing bounds.
func (p *PacingConfig) Validate() error {
	if p.MinWait < 0 {
		return fmt.Errorf("min_wait must not be negative")
	}
	if p.MaxWait < p.MinWait {
		return fmt.Errorf("max_wait must be greater than or equal to min_wait")
	}
	return nil
}

// Validate checks the session lifecycle bounds.
func (s *SessionConfig) Validate() error {
	if s.MaxApplications <= 0 {
		return fmt.Errorf("max_applications must be a positive integer")
	}
	if s.MaxDuration <= 0 {
		return fmt.Errorf("max_duration must be a positive duration")
	}
	return nil
}
