package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ziptraffic/pkg/retry"
)

const (
	defaultConfigPath    = "config.yaml"
	defaultTokenPath     = "./dcm_token.json"
	defaultCountryCode   = "US"
	defaultCountryDartID = 256

	defaultInitialDelay     = time.Second
	defaultMaxDelay         = 20 * time.Second
	defaultMultiplier       = 2.0
	defaultCallBudget       = time.Hour
	defaultActivationBudget = 2 * time.Hour
)

type Config struct {
	ClientID         string
	ClientSecret     string
	ClientSecretName string
	TokenPath        string

	Upload    UploadConfig    `yaml:"upload"`
	Targeting TargetingConfig `yaml:"targeting"`
	Retry     RetryConfig     `yaml:"retry"`
}

type UploadConfig struct {
	WorkDir string `yaml:"work_dir"`
}

type TargetingConfig struct {
	CountryCode   string `yaml:"country_code"`
	CountryDartID int64  `yaml:"country_dart_id"`
}

// RetryConfig holds durations as strings ("1s", "2h") so config.yaml stays
// readable. Zero fields fall back to the stock backoff.
type RetryConfig struct {
	InitialDelay     string  `yaml:"initial_delay"`
	MaxDelay         string  `yaml:"max_delay"`
	Multiplier       float64 `yaml:"multiplier"`
	CallBudget       string  `yaml:"call_budget"`
	ActivationBudget string  `yaml:"activation_budget"`
}

// Load reads .env, config.yaml, and the environment. When the client secret
// is not in the environment but DCM_CLIENT_SECRET_NAME is set, the secret is
// fetched from Secret Manager instead.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		ClientID:         os.Getenv("DCM_CLIENT_ID"),
		ClientSecret:     os.Getenv("DCM_CLIENT_SECRET"),
		ClientSecretName: os.Getenv("DCM_CLIENT_SECRET_NAME"),
		TokenPath:        getEnvOrDefault("DCM_TOKEN_PATH", defaultTokenPath),
	}

	loadYAMLConfig(cfg)
	applyDefaults(cfg)

	if cfg.ClientSecret == "" && cfg.ClientSecretName != "" {
		secret, err := fetchSecret(ctx, cfg.ClientSecretName)
		if err != nil {
			return nil, fmt.Errorf("fetch client secret: %w", err)
		}
		cfg.ClientSecret = secret
	}

	return cfg, nil
}

// CallRetry is the backoff for individual platform calls.
func (c *Config) CallRetry() retry.Policy {
	p := c.basePolicy()
	p.MaxElapsed = parseDuration(c.Retry.CallBudget, defaultCallBudget)
	return p
}

// ActivationRetry is the backoff for the batch activation loop, which gets a
// longer budget because it waits out video transcoding.
func (c *Config) ActivationRetry() retry.Policy {
	p := c.basePolicy()
	p.MaxElapsed = parseDuration(c.Retry.ActivationBudget, defaultActivationBudget)
	return p
}

func (c *Config) basePolicy() retry.Policy {
	return retry.Policy{
		InitialDelay: parseDuration(c.Retry.InitialDelay, defaultInitialDelay),
		MaxDelay:     parseDuration(c.Retry.MaxDelay, defaultMaxDelay),
		Multiplier:   c.Retry.Multiplier,
	}
}

func loadYAMLConfig(cfg *Config) {
	data, err := os.ReadFile(defaultConfigPath)
	if err != nil {
		slog.Warn("No config.yaml found, using defaults")
		return
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Error("Failed to parse config.yaml", "error", err)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Upload.WorkDir == "" {
		cfg.Upload.WorkDir = os.TempDir()
	}
	if cfg.Targeting.CountryCode == "" {
		cfg.Targeting.CountryCode = defaultCountryCode
	}
	if cfg.Targeting.CountryDartID == 0 {
		cfg.Targeting.CountryDartID = defaultCountryDartID
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = defaultMultiplier
	}
}

func fetchSecret(ctx context.Context, name string) (string, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return "", err
	}
	return string(resp.GetPayload().GetData()), nil
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Error("Invalid duration in config.yaml, using default", "value", value, "default", fallback)
		return fallback
	}
	return d
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
