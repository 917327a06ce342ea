package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Sink names accepted by SINK.
const (
	SinkSheets   = "sheets"
	SinkRelay    = "relay"
	SinkPostgres = "postgres"
)

// Failure policies accepted by SINK_FAILURE_POLICY.
const (
	// PolicyStrict answers 500 when the sink fails.
	PolicyStrict = "strict"
	// PolicyBestEffort logs the sink failure and still answers 200.
	PolicyBestEffort = "best_effort"
)

// Config holds application configuration.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	Sink      SinkConfig
	Sheets    SheetsConfig
	Relay     RelayConfig
	Database  DatabaseConfig
	Form      FormConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

type ServerConfig struct {
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	TrustedProxyCount int
}

type CORSConfig struct {
	AllowedOrigins   []string
	FallbackOrigin   string
	AllowCredentials bool
	MaxAge           int
}

type SinkConfig struct {
	Kind          string
	FailurePolicy string
	Timeout       time.Duration
	Retries       int
	RetryBackoff  time.Duration
}

type SheetsConfig struct {
	ServiceAccountKey string
	ClientEmail       string
	PrivateKey        string
	SpreadsheetID     string
	SheetName         string
	Range             string
}

type RelayConfig struct {
	WebhookURL string
}

type DatabaseConfig struct {
	URL string
}

type FormConfig struct {
	HoneypotField      string
	HealthCheckEnabled bool
	MaxBodyBytes       int64
}

type RateLimitConfig struct {
	PerMinute int
	Burst     int
	RedisURL  string
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:              v.GetString("PORT"),
			ReadTimeout:       v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:      v.GetDuration("SERVER_WRITE_TIMEOUT"),
			TrustedProxyCount: v.GetInt("TRUSTED_PROXY_COUNT"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			FallbackOrigin:   strings.TrimSpace(v.GetString("CORS_FALLBACK_ORIGIN")),
			AllowCredentials: v.GetBool("CORS_ALLOW_CREDENTIALS"),
			MaxAge:           v.GetInt("CORS_MAX_AGE"),
		},
		Sink: SinkConfig{
			Kind:          strings.ToLower(strings.TrimSpace(v.GetString("SINK"))),
			FailurePolicy: strings.ToLower(strings.TrimSpace(v.GetString("SINK_FAILURE_POLICY"))),
			Timeout:       v.GetDuration("SINK_TIMEOUT"),
			Retries:       v.GetInt("SINK_RETRIES"),
			RetryBackoff:  v.GetDuration("SINK_RETRY_BACKOFF"),
		},
		Sheets: SheetsConfig{
			ServiceAccountKey: v.GetString("GOOGLE_SERVICE_ACCOUNT_KEY"),
			ClientEmail:       v.GetString("GOOGLE_CLIENT_EMAIL"),
			PrivateKey:        v.GetString("GOOGLE_PRIVATE_KEY"),
			SpreadsheetID:     v.GetString("SPREADSHEET_ID"),
			SheetName:         v.GetString("SHEET_NAME"),
			Range:             v.GetString("SHEET_RANGE"),
		},
		Relay: RelayConfig{
			WebhookURL: v.GetString("RELAY_WEBHOOK_URL"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("DATABASE_URL"),
		},
		Form: FormConfig{
			HoneypotField:      strings.TrimSpace(v.GetString("HONEYPOT_FIELD")),
			HealthCheckEnabled: v.GetBool("HEALTH_CHECK_ENABLED"),
			MaxBodyBytes:       v.GetInt64("MAX_BODY_BYTES"),
		},
		RateLimit: RateLimitConfig{
			PerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
			Burst:     v.GetInt("RATE_LIMIT_BURST"),
			RedisURL:  v.GetString("REDIS_URL"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Sink.FailurePolicy == PolicyBestEffort {
		slog.Warn("sink failures will be logged and answered with 200", "policy", cfg.Sink.FailurePolicy)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", "10s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("TRUSTED_PROXY_COUNT", 1)
	v.SetDefault("LOG_LEVEL", "INFO")

	v.SetDefault("CORS_ALLOWED_ORIGINS", "https://mnmkstudio.com,https://www.mnmkstudio.com")
	v.SetDefault("CORS_ALLOW_CREDENTIALS", false)
	v.SetDefault("CORS_MAX_AGE", 86400)

	v.SetDefault("SINK", SinkSheets)
	v.SetDefault("SINK_FAILURE_POLICY", PolicyStrict)
	v.SetDefault("SINK_TIMEOUT", "10s")
	v.SetDefault("SINK_RETRIES", 1)
	v.SetDefault("SINK_RETRY_BACKOFF", "250ms")

	v.SetDefault("SHEET_NAME", "Contact")
	v.SetDefault("SHEET_RANGE", "A1")

	v.SetDefault("HONEYPOT_FIELD", "website")
	v.SetDefault("HEALTH_CHECK_ENABLED", true)
	v.SetDefault("MAX_BODY_BYTES", 64<<10)

	v.SetDefault("RATE_LIMIT_PER_MINUTE", 10)
	v.SetDefault("RATE_LIMIT_BURST", 5)
}

// Validate rejects values that would make the service misbehave silently.
// Missing sink credentials are not an error here: the server starts and
// reports them through the health check instead.
func (c *Config) Validate() error {
	switch c.Sink.Kind {
	case SinkSheets, SinkRelay, SinkPostgres:
	default:
		return fmt.Errorf("config: unknown SINK %q (want sheets, relay or postgres)", c.Sink.Kind)
	}
	switch c.Sink.FailurePolicy {
	case PolicyStrict, PolicyBestEffort:
	default:
		return fmt.Errorf("config: unknown SINK_FAILURE_POLICY %q (want strict or best_effort)", c.Sink.FailurePolicy)
	}
	if c.Sink.Retries < 0 {
		return fmt.Errorf("config: SINK_RETRIES must be >= 0, got %d", c.Sink.Retries)
	}
	if c.Sink.Timeout <= 0 {
		return fmt.Errorf("config: SINK_TIMEOUT must be positive, got %s", c.Sink.Timeout)
	}
	if c.Form.HoneypotField == "" {
		return fmt.Errorf("config: HONEYPOT_FIELD must not be empty")
	}
	if c.Form.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: MAX_BODY_BYTES must be positive, got %d", c.Form.MaxBodyBytes)
	}
	if c.CORS.AllowCredentials && c.CORS.AllowsAnyOrigin() {
		return fmt.Errorf("config: CORS_ALLOW_CREDENTIALS cannot be combined with a wildcard origin")
	}
	return nil
}

// AllowsAnyOrigin reports whether the allow-list contains "*".
func (c CORSConfig) AllowsAnyOrigin() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// SinkChecks reports, per configuration item the active sink needs, whether
// it is present. Values are never included.
func (c *Config) SinkChecks() map[string]bool {
	switch c.Sink.Kind {
	case SinkSheets:
		hasJSON := strings.TrimSpace(c.Sheets.ServiceAccountKey) != ""
		hasPair := strings.TrimSpace(c.Sheets.ClientEmail) != "" && strings.TrimSpace(c.Sheets.PrivateKey) != ""
		return map[string]bool{
			"credentials":    hasJSON || hasPair,
			"spreadsheet_id": strings.TrimSpace(c.Sheets.SpreadsheetID) != "",
		}
	case SinkRelay:
		return map[string]bool{"webhook_url": strings.TrimSpace(c.Relay.WebhookURL) != ""}
	case SinkPostgres:
		return map[string]bool{"database_url": strings.TrimSpace(c.Database.URL) != ""}
	}
	return map[string]bool{}
}

// splitList parses a comma separated list, dropping blanks and trailing
// slashes so "https://a.com/" matches the Origin header "https://a.com".
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimRight(strings.TrimSpace(part), "/")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
