package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName          = "AquaDrop"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultVerificationTTL  = 10 * time.Minute
	defaultSessionTTL       = 720 * time.Hour
	defaultSetupTokenTTL    = 15 * time.Minute
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
	defaultFailureDelay     = 300 * time.Millisecond
	defaultThrottlePerMin   = 5
	defaultChannel          = "whatsapp"
	defaultWhatsAppBaseURL  = "https://graph.facebook.com/v19.0"
	defaultSMSBaseURL       = "https://api.twilio.com/2010-04-01"
	defaultDevPhonePattern  = `^.{4,}$`
	defaultProdPhonePattern = `^\+?[1-9]\d{7,14}$`
	devJWTSecret            = "dev-only-insecure-secret"
)

// ErrDebugCodesInProduction is returned when the debug code slot is enabled
// for a production environment.
var ErrDebugCodesInProduction = errors.New("DEBUG_VERIFICATION_CODES cannot be enabled in production")

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogSuppress    []string
	DatabaseURL    string
	RedisURL       string
	AutoMigrate    bool
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret     string
	SessionTTL    time.Duration
	SetupTokenTTL time.Duration

	Verification Verification
	Lockout      Lockout
	WhatsApp     WhatsApp
	SMS          SMS

	ThrottlePerMinute int
}

// Verification controls the phone verification code lifecycle.
type Verification struct {
	TTL              time.Duration
	Channel          string
	SMSFallback      bool
	DebugCodes       bool
	DevPhonePattern  string
	ProdPhonePattern string
}

// Lockout controls failed PIN attempt handling.
type Lockout struct {
	Threshold    int
	Duration     time.Duration
	FailureDelay time.Duration
}

// WhatsApp holds WhatsApp Business Cloud API credentials.
type WhatsApp struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
}

// SMS holds credentials for the SMS provider.
type SMS struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is honoured when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getEnv("APP_NAME", defaultAppName),
		AppEnv:      strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:        getEnv("PORT", defaultPort),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogSuppress: splitList(os.Getenv("LOG_SUPPRESS")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		Verification: Verification{
			Channel:          strings.ToLower(getEnv("VERIFICATION_CHANNEL", defaultChannel)),
			DevPhonePattern:  getEnv("PHONE_PATTERN_DEV", defaultDevPhonePattern),
			ProdPhonePattern: getEnv("PHONE_PATTERN_PROD", defaultProdPhonePattern),
		},
		WhatsApp: WhatsApp{
			BaseURL:       getEnv("WHATSAPP_API_URL", defaultWhatsAppBaseURL),
			Token:         os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		},
		SMS: SMS{
			BaseURL:    getEnv("SMS_API_URL", defaultSMSBaseURL),
			AccountSID: os.Getenv("SMS_ACCOUNT_SID"),
			AuthToken:  os.Getenv("SMS_AUTH_TOKEN"),
			From:       os.Getenv("SMS_FROM"),
		},
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod, defaultShutdownDelay},
		{"IDEMPOTENCY_TTL", &cfg.IdempotencyTTL, defaultIdempotencyTTL},
		{"VERIFICATION_TTL", &cfg.Verification.TTL, defaultVerificationTTL},
		{"SESSION_TTL", &cfg.SessionTTL, defaultSessionTTL},
		{"SETUP_TOKEN_TTL", &cfg.SetupTokenTTL, defaultSetupTokenTTL},
		{"PIN_LOCKOUT_DURATION", &cfg.Lockout.Duration, defaultLockoutDuration},
		{"PIN_FAILURE_DELAY", &cfg.Lockout.FailureDelay, defaultFailureDelay},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.def); err != nil {
			return Config{}, err
		}
	}

	if cfg.Lockout.Threshold, err = getInt("PIN_LOCKOUT_THRESHOLD", defaultLockoutThreshold); err != nil {
		return Config{}, err
	}
	if cfg.ThrottlePerMinute, err = getInt("THROTTLE_PER_MINUTE", defaultThrottlePerMin); err != nil {
		return Config{}, err
	}
	if cfg.AutoMigrate, err = getBool("AUTO_MIGRATE", true); err != nil {
		return Config{}, err
	}
	if cfg.Verification.SMSFallback, err = getBool("VERIFICATION_SMS_FALLBACK", false); err != nil {
		return Config{}, err
	}
	if cfg.Verification.DebugCodes, err = getBool("DEBUG_VERIFICATION_CODES", false); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Development environments may run
// without Postgres or Redis; production may not.
func (c *Config) Validate() error {
	switch c.Verification.Channel {
	case "whatsapp", "sms", "log":
	default:
		return fmt.Errorf("invalid VERIFICATION_CHANNEL %q", c.Verification.Channel)
	}

	positive := []struct {
		key string
		val time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", c.ShutdownPeriod},
		{"IDEMPOTENCY_TTL", c.IdempotencyTTL},
		{"VERIFICATION_TTL", c.Verification.TTL},
		{"SESSION_TTL", c.SessionTTL},
		{"SETUP_TOKEN_TTL", c.SetupTokenTTL},
		{"PIN_LOCKOUT_DURATION", c.Lockout.Duration},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return fmt.Errorf("%s must be positive, got %s", p.key, p.val)
		}
	}
	if c.Lockout.FailureDelay < 0 {
		return fmt.Errorf("PIN_FAILURE_DELAY must not be negative, got %s", c.Lockout.FailureDelay)
	}
	if c.Lockout.Threshold < 0 {
		return fmt.Errorf("PIN_LOCKOUT_THRESHOLD must not be negative, got %d", c.Lockout.Threshold)
	}
	if c.ThrottlePerMinute <= 0 {
		return fmt.Errorf("THROTTLE_PER_MINUTE must be positive, got %d", c.ThrottlePerMinute)
	}

	if c.IsDev() {
		if c.JWTSecret == "" {
			c.JWTSecret = devJWTSecret
		}
		return nil
	}

	if c.Verification.DebugCodes {
		return ErrDebugCodesInProduction
	}
	if c.Verification.Channel == "log" {
		return fmt.Errorf("VERIFICATION_CHANNEL=log is only allowed in development")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	return nil
}

// IsDev reports whether the app runs in a development-like environment.
func (c Config) IsDev() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// PhonePattern returns the phone validation pattern for the current environment.
func (c Config) PhonePattern() string {
	if c.IsDev() {
		return c.Verification.DevPhonePattern
	}
	return c.Verification.ProdPhonePattern
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getDuration accepts either KEY (a Go duration) or KEY_SECONDS (an integer).
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
