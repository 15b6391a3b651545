package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/xbook/internal/auth"
)

// Config holds application configuration
type Config struct {
	// Account
	AuthMethod string
	NetID      string
	Email      string
	Password   string
	MemberID   int64
	Timezone   string
	Category   string

	LogLevel  string
	LogFormat string

	// Acquisition loop and platform transport
	PollInterval   time.Duration
	MissTolerance  int
	HTTPTimeout    time.Duration
	RequestRate    float64
	RequestBurst   int
	PlatformAPIURL string
	HTMLExtractor  string

	// Category data
	BookingTagOverrides  string
	GymBookingWindow     time.Duration
	HallBookingLeadDays  int
	DefaultBookingWindow time.Duration

	MetricsAddr string

	// Booking e-mail
	NotifyEmailTo     string
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		AuthMethod: strings.ToLower(strings.TrimSpace(getEnv("XBOOK_AUTH_METHOD", "tud_sso"))),
		NetID:      getEnv("XBOOK_NETID", ""),
		Email:      getEnv("XBOOK_EMAIL", ""),
		Password:   getEnv("XBOOK_PASSWORD", ""),
		MemberID:   getEnvAsInt64("XBOOK_MEMBER_ID", 0),
		Timezone:   getEnv("XBOOK_TIMEZONE", "Europe/Amsterdam"),
		Category:   strings.TrimSpace(getEnv("XBOOK_CATEGORY", "")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		PollInterval:   getEnvAsDuration("POLL_INTERVAL", time.Second),
		MissTolerance:  getEnvAsInt("MISS_TOLERANCE", 1),
		HTTPTimeout:    getEnvAsDuration("HTTP_TIMEOUT", 20*time.Second),
		RequestRate:    getEnvAsFloat("REQUEST_RATE", 10),
		RequestBurst:   getEnvAsInt("REQUEST_BURST", 5),
		PlatformAPIURL: getEnv("PLATFORM_API_URL", "https://backbone-web-api.production.delft.delcom.nl"),
		HTMLExtractor:  strings.ToLower(getEnv("HTML_EXTRACTOR", "marker")),

		BookingTagOverrides:  getEnv("BOOKING_TAG_OVERRIDES", ""),
		GymBookingWindow:     getEnvAsDuration("GYM_BOOKING_WINDOW", 7*24*time.Hour),
		HallBookingLeadDays:  getEnvAsInt("HALL_BOOKING_LEAD_DAYS", 3),
		DefaultBookingWindow: getEnvAsDuration("DEFAULT_BOOKING_WINDOW", 365*24*time.Hour),

		MetricsAddr: getEnv("METRICS_ADDR", ""),

		NotifyEmailTo:     getEnv("NOTIFY_EMAIL_TO", ""),
		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "xbook"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		AWSRegion:           getEnv("AWS_REGION", "eu-west-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// Method parses AuthMethod.
func (c *Config) Method() (auth.Method, error) {
	return auth.ParseMethod(c.AuthMethod)
}

// Identifier returns the login name for the configured method: the net-ID
// for federated login, the e-mail address otherwise.
func (c *Config) Identifier() string {
	if m, err := c.Method(); err == nil && m == auth.MethodDirect {
		return c.Email
	}
	return c.NetID
}

// Member returns the configured member ID, nil when unset.
func (c *Config) Member() *int64 {
	if c.MemberID <= 0 {
		return nil
	}
	id := c.MemberID
	return &id
}

// Location loads Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: XBOOK_TIMEZONE: %w", err)
	}
	return loc, nil
}

// TagOverrides decodes BOOKING_TAG_OVERRIDES, a JSON object of category key
// to tag ID such as {"GYM":28}.
func (c *Config) TagOverrides() (map[string]int, error) {
	raw := strings.TrimSpace(c.BookingTagOverrides)
	if raw == "" {
		return nil, nil
	}
	var out map[string]int
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("config: BOOKING_TAG_OVERRIDES: %w", err)
	}
	return out, nil
}

// Validate checks the rules that span several variables. The password is not
// checked here because the CLI may prompt for it.
func (c *Config) Validate() error {
	method, err := c.Method()
	if err != nil {
		return fmt.Errorf("config: XBOOK_AUTH_METHOD: %w", err)
	}
	switch method {
	case auth.MethodFederatedSSO:
		if strings.TrimSpace(c.NetID) == "" {
			return fmt.Errorf("config: XBOOK_NETID is required for %s login", method)
		}
	case auth.MethodDirect:
		if strings.TrimSpace(c.Email) == "" {
			return fmt.Errorf("config: XBOOK_EMAIL is required for %s login", method)
		}
	}
	if _, err := c.TagOverrides(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: POLL_INTERVAL must be positive")
	}
	if c.MissTolerance < 1 {
		return fmt.Errorf("config: MISS_TOLERANCE must be at least 1")
	}
	if c.HallBookingLeadDays < 0 {
		return fmt.Errorf("config: HALL_BOOKING_LEAD_DAYS must not be negative")
	}
	switch c.EmailProvider {
	case "auto", "sendgrid", "ses", "none", "":
	default:
		return fmt.Errorf("config: unknown EMAIL_PROVIDER %q", c.EmailProvider)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
