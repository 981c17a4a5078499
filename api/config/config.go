package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
// It is built once by the process entrypoint and injected into services;
// nothing below cmd/ reads the environment directly.
type Config struct {
	DatabaseURL string

	// Payment provider credentials. The secret key never leaves the gateway;
	// the publishable key is handed to clients to complete checkout.
	ProviderSecretKey      string
	ProviderPublishableKey string
	WebhookSecret          string
	WebhookSignatureHeader string

	// Provider plan identifiers per local plan.
	PlanBasic   string
	PlanPro     string
	PlanPremium string

	JWTSecret string

	ResendAPIKey string
	EmailFrom    string

	// Optional: base URL for running remote HTTP integration tests (e.g., https://api.example.com)
	IntegrationBaseURL string

	// Server ports
	HTTPPort string
	GRPCPort string

	LogLevel  string
	LogFormat string

	// Raw duration strings, parsed into the typed fields below.
	ProviderTimeoutRaw string
	NotifyTimeoutRaw   string
	NotifyWorkersRaw   string

	ProviderTimeout time.Duration
	NotifyTimeout   time.Duration
	NotifyWorkers   int64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{}
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	vars := []struct {
		name     string
		envVar   string
		display  string
		required bool
	}{
		{"DatabaseURL", "DATABASE_URL", "Database URL", true},
		{"ProviderSecretKey", "PROVIDER_SECRET_KEY", "Provider Secret Key", true},
		{"ProviderPublishableKey", "PROVIDER_PUBLISHABLE_KEY", "Provider Publishable Key", false},
		{"WebhookSecret", "WEBHOOK_SECRET", "Webhook Secret", true},
		{"WebhookSignatureHeader", "WEBHOOK_SIGNATURE_HEADER", "Webhook Signature Header", false},
		{"PlanBasic", "PLAN_BASIC", "Basic Plan ID", false},
		{"PlanPro", "PLAN_PRO", "Pro Plan ID", false},
		{"PlanPremium", "PLAN_PREMIUM", "Premium Plan ID", false},
		{"JWTSecret", "JWT_SECRET", "JWT Secret", true},
		{"ResendAPIKey", "RESEND_API_KEY", "Resend API Key", false},
		{"EmailFrom", "EMAIL_FROM", "Email Sender", false},
		{"IntegrationBaseURL", "INTEGRATION_BASE_URL", "Integration Base URL", false},
		{"HTTPPort", "PORT", "HTTP Port", false},
		{"GRPCPort", "GRPC_PORT", "gRPC Port", false},
		{"LogLevel", "LOG_LEVEL", "Log Level", false},
		{"LogFormat", "LOG_FORMAT", "Log Format", false},
		{"ProviderTimeoutRaw", "PROVIDER_TIMEOUT", "Provider Timeout", false},
		{"NotifyTimeoutRaw", "NOTIFY_TIMEOUT", "Notification Timeout", false},
		{"NotifyWorkersRaw", "NOTIFY_WORKERS", "Notification Workers", false},
	}

	for _, v := range vars {
		value := os.Getenv(v.envVar)
		if v.required && value == "" {
			return nil, fmt.Errorf("missing required environment variable: %s", v.display)
		}
		configField := reflect.ValueOf(config).Elem().FieldByName(v.name)
		configField.SetString(value)
	}

	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDotEnv loads the nearest .env file found walking up from the working
// directory. Variables already set in the environment win.
func LoadDotEnv() error {
	currentDir, _ := os.Getwd()
	for currentDir != "/" && currentDir != "." {
		envPath := filepath.Join(currentDir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return fmt.Errorf("failed to load .env file: %v", err)
			}
			return nil
		}
		currentDir = filepath.Dir(currentDir)
	}
	return nil
}

func (c *Config) applyDefaults() error {
	if c.HTTPPort == "" {
		c.HTTPPort = "8080"
	}
	if c.GRPCPort == "" {
		c.GRPCPort = "50051"
	}
	if c.WebhookSignatureHeader == "" {
		c.WebhookSignatureHeader = DefaultSignatureHeader
	}
	if c.EmailFrom == "" {
		c.EmailFrom = DefaultEmailFrom
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "auto"
	}

	var err error
	if c.ProviderTimeout, err = parseDuration(c.ProviderTimeoutRaw, DefaultProviderTimeout); err != nil {
		return fmt.Errorf("invalid PROVIDER_TIMEOUT: %w", err)
	}
	if c.NotifyTimeout, err = parseDuration(c.NotifyTimeoutRaw, DefaultNotifyTimeout); err != nil {
		return fmt.Errorf("invalid NOTIFY_TIMEOUT: %w", err)
	}
	c.NotifyWorkers = DefaultNotifyWorkers
	if c.NotifyWorkersRaw != "" {
		n, err := strconv.ParseInt(c.NotifyWorkersRaw, 10, 64)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid NOTIFY_WORKERS: %q", c.NotifyWorkersRaw)
		}
		c.NotifyWorkers = n
	}
	return nil
}

// PlanIDs maps local plan names to provider plan identifiers. Plans with an
// empty identifier are left out, which makes them unsubscribable.
func (c *Config) PlanIDs() map[string]string {
	out := make(map[string]string, 3)
	for name, id := range map[string]string{
		"BASIC":   c.PlanBasic,
		"PRO":     c.PlanPro,
		"PREMIUM": c.PlanPremium,
	} {
		if id != "" {
			out[name] = id
		}
	}
	return out
}

func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", raw)
	}
	return d, nil
}
