package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/daybook/backend/internal/transcript"
	"github.com/spf13/viper"
)

const (
	envPrefix                     = "DAYBOOK"
	defaultHTTPAddress            = "0.0.0.0:8080"
	defaultDatabasePath           = "daybook.db"
	defaultLogLevel               = "info"
	defaultLogFormat              = "json"
	defaultRawCollection          = "raw_memories"
	defaultReflectionsCollection  = "daily_reflections"
	defaultReflectionSchedule     = "0 21 * * *"
	defaultReflectionTimezone     = "UTC"
	defaultReflectionDayBoundary  = "same-day"
	defaultInsightProfile         = "daily-v2"
	defaultDispatchBufferSize     = 256
	defaultDispatchTaskTimeoutSec = 30
)

// AppConfig captures runtime configuration for the Daybook service.
type AppConfig struct {
	HTTPAddress string
	LogLevel    string
	LogFormat   string

	DatabasePath string

	OpenAIAPIKey string
	OpenAIModel  string

	NotionAPIKey     string
	NotionDatabaseID string

	FirestoreProjectID    string
	RawCollection         string
	ReflectionsCollection string

	RedisURL string

	ReflectionSchedule    string
	ReflectionTimezone    string
	ReflectionDayBoundary transcript.BoundaryRule
	DefaultUserID         string
	InsightProfile        string

	DispatchBufferSize  int
	DispatchTaskTimeout time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("firestore.raw_collection", defaultRawCollection)
	configViper.SetDefault("firestore.reflections_collection", defaultReflectionsCollection)
	configViper.SetDefault("reflection.schedule", defaultReflectionSchedule)
	configViper.SetDefault("reflection.timezone", defaultReflectionTimezone)
	configViper.SetDefault("reflection.day_boundary", defaultReflectionDayBoundary)
	configViper.SetDefault("insight.profile", defaultInsightProfile)
	configViper.SetDefault("dispatch.buffer_size", defaultDispatchBufferSize)
	configViper.SetDefault("dispatch.task_timeout_s", defaultDispatchTaskTimeoutSec)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	boundary, err := transcript.ParseBoundaryRule(configViper.GetString("reflection.day_boundary"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("reflection.day_boundary is invalid: %w", err)
	}

	cfg := AppConfig{
		HTTPAddress:           configViper.GetString("http.address"),
		LogLevel:              configViper.GetString("log.level"),
		LogFormat:             configViper.GetString("log.format"),
		DatabasePath:          configViper.GetString("database.path"),
		OpenAIAPIKey:          configViper.GetString("openai.api_key"),
		OpenAIModel:           configViper.GetString("openai.model"),
		NotionAPIKey:          configViper.GetString("notion.api_key"),
		NotionDatabaseID:      configViper.GetString("notion.database_id"),
		FirestoreProjectID:    configViper.GetString("firestore.project_id"),
		RawCollection:         configViper.GetString("firestore.raw_collection"),
		ReflectionsCollection: configViper.GetString("firestore.reflections_collection"),
		RedisURL:              configViper.GetString("redis.url"),
		ReflectionSchedule:    configViper.GetString("reflection.schedule"),
		ReflectionTimezone:    configViper.GetString("reflection.timezone"),
		ReflectionDayBoundary: boundary,
		DefaultUserID:         configViper.GetString("reflection.default_user"),
		InsightProfile:        configViper.GetString("insight.profile"),
		DispatchBufferSize:    configViper.GetInt("dispatch.buffer_size"),
		DispatchTaskTimeout:   time.Duration(configViper.GetInt("dispatch.task_timeout_s")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := time.LoadLocation(c.ReflectionTimezone); err != nil {
		return fmt.Errorf("reflection.timezone is invalid: %w", err)
	}
	if strings.TrimSpace(c.NotionAPIKey) != "" && strings.TrimSpace(c.NotionDatabaseID) == "" {
		return fmt.Errorf("notion.database_id is required when notion.api_key is set")
	}
	if c.DispatchBufferSize <= 0 {
		return fmt.Errorf("dispatch.buffer_size must be positive")
	}
	return nil
}

// Timezone returns the configured reflection timezone, falling back to UTC.
func (c AppConfig) Timezone() *time.Location {
	location, err := time.LoadLocation(c.ReflectionTimezone)
	if err != nil {
		return time.UTC
	}
	return location
}
