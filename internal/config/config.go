// Package config loads service configuration from DUCKVIZ_* environment
// variables on top of per-profile defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "DUCKVIZ_"

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	AI            AIConfig
	Sandbox       SandboxConfig
	Prompt        PromptConfig
	Conversation  ConversationConfig
	Sessions      SessionsConfig
	Datasets      DatasetsConfig
	ObjectStore   ObjectStoreConfig
	Postgres      PostgresConfig
	Export        ExportConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type AIConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxTokens   int
}

type SandboxConfig struct {
	Timeout              time.Duration
	OutputLimit          int
	RejectMultiStatement bool
}

type PromptConfig struct {
	SampleRows int
}

type ConversationConfig struct {
	HistoryCap        int
	RollbackOnFailure bool
}

type SessionsConfig struct {
	IdleTTL     time.Duration
	MaxSessions int
}

type DatasetsConfig struct {
	ManifestPath string
}

type ObjectStoreConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// PostgresConfig is the optional relational dataset source. An empty DSN
// disables it.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type ExportConfig struct {
	Enabled       bool
	Prefix        string
	PresignExpiry time.Duration
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup(envPrefix + "PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid %sPROFILE: %q", envPrefix, profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	for _, b := range cfg.bindings() {
		raw, ok := lookup(envPrefix + b.key)
		if !ok {
			continue
		}
		if err := b.apply(strings.TrimSpace(raw)); err != nil {
			return Config{}, fmt.Errorf("invalid %s%s: %w", envPrefix, b.key, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	switch {
	case cfg.Service.Name == "":
		return fmt.Errorf("service name is required")
	case cfg.HTTP.Address == "":
		return fmt.Errorf("http address is required")
	case cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2:
		return fmt.Errorf("ai temperature must be within [0, 2], got %v", cfg.AI.Temperature)
	case cfg.Sandbox.Timeout <= 0:
		return fmt.Errorf("sandbox timeout must be > 0")
	case cfg.Sandbox.OutputLimit <= 0:
		return fmt.Errorf("sandbox output limit must be > 0")
	case cfg.Prompt.SampleRows <= 0:
		return fmt.Errorf("prompt sample rows must be > 0")
	case cfg.Conversation.HistoryCap <= 0:
		return fmt.Errorf("conversation history cap must be > 0")
	case cfg.Sessions.IdleTTL <= 0:
		return fmt.Errorf("session idle ttl must be > 0")
	case cfg.Export.Enabled && !cfg.ObjectStore.Enabled:
		return fmt.Errorf("export requires the object store to be enabled")
	}
	return nil
}

type binding struct {
	key   string
	apply func(raw string) error
}

func (cfg *Config) bindings() []binding {
	return []binding{
		{"SERVICE_NAME", setString(&cfg.Service.Name)},
		{"HTTP_ADDR", setString(&cfg.HTTP.Address)},
		{"HTTP_READ_TIMEOUT", setDuration(&cfg.HTTP.ReadTimeout)},
		{"HTTP_WRITE_TIMEOUT", setDuration(&cfg.HTTP.WriteTimeout)},
		{"HTTP_IDLE_TIMEOUT", setDuration(&cfg.HTTP.IdleTimeout)},

		{"AI_PROVIDER", setString(&cfg.AI.Provider)},
		{"AI_BASE_URL", setString(&cfg.AI.BaseURL)},
		{"AI_API_KEY", setString(&cfg.AI.APIKey)},
		{"AI_MODEL", setString(&cfg.AI.Model)},
		{"AI_TEMPERATURE", setFloat(&cfg.AI.Temperature)},
		{"AI_TIMEOUT", setDuration(&cfg.AI.Timeout)},
		{"AI_MAX_TOKENS", setInt(&cfg.AI.MaxTokens)},

		{"SANDBOX_TIMEOUT", setDuration(&cfg.Sandbox.Timeout)},
		{"SANDBOX_OUTPUT_LIMIT", setInt(&cfg.Sandbox.OutputLimit)},
		{"SANDBOX_REJECT_MULTI_STATEMENT", setBool(&cfg.Sandbox.RejectMultiStatement)},
		{"PROMPT_SAMPLE_ROWS", setInt(&cfg.Prompt.SampleRows)},
		{"CONVERSATION_HISTORY_CAP", setInt(&cfg.Conversation.HistoryCap)},
		{"CONVERSATION_ROLLBACK_ON_FAILURE", setBool(&cfg.Conversation.RollbackOnFailure)},
		{"SESSIONS_IDLE_TTL", setDuration(&cfg.Sessions.IdleTTL)},
		{"SESSIONS_MAX", setInt(&cfg.Sessions.MaxSessions)},
		{"DATASETS_MANIFEST", setString(&cfg.Datasets.ManifestPath)},

		{"OBJECTSTORE_ENABLED", setBool(&cfg.ObjectStore.Enabled)},
		{"OBJECTSTORE_ENDPOINT", setString(&cfg.ObjectStore.Endpoint)},
		{"OBJECTSTORE_REGION", setString(&cfg.ObjectStore.Region)},
		{"OBJECTSTORE_BUCKET", setString(&cfg.ObjectStore.Bucket)},
		{"OBJECTSTORE_ACCESS_KEY", setString(&cfg.ObjectStore.AccessKeyID)},
		{"OBJECTSTORE_SECRET_KEY", setString(&cfg.ObjectStore.SecretAccessKey)},
		{"OBJECTSTORE_USE_SSL", setBool(&cfg.ObjectStore.UseSSL)},
		{"OBJECTSTORE_PREFIX", setString(&cfg.ObjectStore.Prefix)},
		{"OBJECTSTORE_AUTO_CREATE_BUCKET", setBool(&cfg.ObjectStore.AutoCreateBucket)},

		{"POSTGRES_DSN", setString(&cfg.Postgres.DSN)},
		{"POSTGRES_MAX_OPEN_CONNS", setInt(&cfg.Postgres.MaxOpenConns)},
		{"POSTGRES_MAX_IDLE_CONNS", setInt(&cfg.Postgres.MaxIdleConns)},
		{"POSTGRES_CONN_MAX_IDLE_TIME", setDuration(&cfg.Postgres.ConnMaxIdleTime)},
		{"POSTGRES_CONN_MAX_LIFETIME", setDuration(&cfg.Postgres.ConnMaxLifetime)},

		{"EXPORT_ENABLED", setBool(&cfg.Export.Enabled)},
		{"EXPORT_PREFIX", setString(&cfg.Export.Prefix)},
		{"EXPORT_PRESIGN_EXPIRY", setDuration(&cfg.Export.PresignExpiry)},

		{"LOG_JSON", setBool(&cfg.Observability.LogJSON)},
		{"LOG_LEVEL", setLogLevel(&cfg.Observability.LogLevel)},
		{"AUTH_REQUIRED", setBool(&cfg.Auth.Required)},
		{"AUTH_STATIC_KEYS", setString(&cfg.Auth.StaticKeys)},
	}
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "duckviz-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		AI: AIConfig{
			Provider:    "openai",
			Temperature: 0.2,
			Timeout:     60 * time.Second,
			MaxTokens:   2048,
		},
		Sandbox: SandboxConfig{
			Timeout:     30 * time.Second,
			OutputLimit: 64 << 10,
		},
		Prompt:       PromptConfig{SampleRows: 5},
		Conversation: ConversationConfig{HistoryCap: 4},
		Sessions: SessionsConfig{
			IdleTTL:     30 * time.Minute,
			MaxSessions: 1000,
		},
		Datasets: DatasetsConfig{ManifestPath: "datasets.toml"},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "duckviz",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			AutoCreateBucket: true,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    5,
			MaxIdleConns:    5,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Export: ExportConfig{
			Prefix:        "charts",
			PresignExpiry: time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Sandbox.Timeout = 5 * time.Second
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.Sandbox.RejectMultiStatement = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}
	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func setString(dst *string) func(string) error {
	return func(raw string) error {
		*dst = raw
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(raw string) error {
		value, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*dst = value
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(raw string) error {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		*dst = value
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(raw string) error {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*dst = value
		return nil
	}
}

func setFloat(dst *float64) func(string) error {
	return func(raw string) error {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		*dst = value
		return nil
	}
}

func setLogLevel(dst *slog.Level) func(string) error {
	return func(raw string) error {
		switch strings.ToLower(raw) {
		case "debug":
			*dst = slog.LevelDebug
		case "info":
			*dst = slog.LevelInfo
		case "warn", "warning":
			*dst = slog.LevelWarn
		case "error":
			*dst = slog.LevelError
		default:
			return fmt.Errorf("unknown log level %q", raw)
		}
		return nil
	}
}
