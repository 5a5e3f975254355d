package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Gmail    GmailConfig    `mapstructure:"gmail"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Watch    WatchConfig    `mapstructure:"watch"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
	TopicName    string `mapstructure:"topic_name"`
	UseFake      bool   `mapstructure:"use_fake"`
}

// PubSubConfig holds the optional pull-mode notification subscriber
// configuration. When disabled, notifications arrive only via the push
// webhook.
type PubSubConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ProjectID       string `mapstructure:"project_id"`
	Subscription    string `mapstructure:"subscription"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// IngestConfig holds ingestion engine tuning
type IngestConfig struct {
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
}

// WatchConfig holds mailbox watch renewal configuration
type WatchConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	IntervalHours int  `mapstructure:"interval_hours"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	// A local .env is optional; real deployments set environment variables.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("gmail.use_fake", false)

	viper.SetDefault("pubsub.enabled", false)

	viper.SetDefault("ingest.fetch_timeout", "15s")
	viper.SetDefault("ingest.run_timeout", "5m")

	viper.SetDefault("watch.enabled", false)
	viper.SetDefault("watch.interval_hours", 24)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	// Gmail
	viper.BindEnv("gmail.client_id", "GMAIL_CLIENT_ID")
	viper.BindEnv("gmail.client_secret", "GMAIL_CLIENT_SECRET")
	viper.BindEnv("gmail.refresh_token", "GMAIL_REFRESH_TOKEN")
	viper.BindEnv("gmail.user_email", "GMAIL_USER_EMAIL")
	viper.BindEnv("gmail.topic_name", "GMAIL_TOPIC_NAME")
	viper.BindEnv("gmail.use_fake", "GMAIL_USE_FAKE")

	// PubSub
	viper.BindEnv("pubsub.enabled", "PUBSUB_ENABLED")
	viper.BindEnv("pubsub.project_id", "PUBSUB_PROJECT_ID")
	viper.BindEnv("pubsub.subscription", "PUBSUB_SUBSCRIPTION")
	viper.BindEnv("pubsub.credentials_file", "PUBSUB_CREDENTIALS_FILE")

	// Ingest
	viper.BindEnv("ingest.fetch_timeout", "INGEST_FETCH_TIMEOUT")
	viper.BindEnv("ingest.run_timeout", "INGEST_RUN_TIMEOUT")

	// Watch
	viper.BindEnv("watch.enabled", "WATCH_ENABLED")
	viper.BindEnv("watch.interval_hours", "WATCH_INTERVAL_HOURS")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if !c.Gmail.UseFake {
		if c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "" || c.Gmail.RefreshToken == "" {
			return fmt.Errorf("Gmail OAuth2 credentials are required when not using the fake mailbox client")
		}
		if c.Gmail.UserEmail == "" {
			return fmt.Errorf("Gmail user email is required when not using the fake mailbox client")
		}
	}

	if c.PubSub.Enabled {
		if c.PubSub.ProjectID == "" || c.PubSub.Subscription == "" {
			return fmt.Errorf("pubsub project_id and subscription are required when the pull subscriber is enabled")
		}
	}

	if c.Watch.Enabled && c.Gmail.TopicName == "" {
		return fmt.Errorf("gmail topic_name is required when watch renewal is enabled")
	}

	if c.Ingest.FetchTimeout <= 0 {
		return fmt.Errorf("ingest fetch timeout must be greater than 0")
	}

	return nil
}
