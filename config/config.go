package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"trellis-api"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Public base URL of this API; OAuth redirect URIs are built from it
	PublicURL string `env:"PUBLIC_URL" env-default:"http://localhost:3000"`
	// Admin console URL the OAuth callback redirects back to
	FrontendURL string `env:"FRONTEND_URL" env-default:"http://localhost:5173"`

	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"trellis"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10m"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Auth Issuer URL
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	// Auth Client ID
	AuthClientID string `env:"AUTH_CLIENT_ID" env-default:""`
	// Auth Enabled - when false, X-Tenant-ID and X-User-ID headers are trusted
	AuthEnabled bool `env:"AUTH_ENABLED" env-default:"true"`

	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Topic the delete and backfill jobs are published to
	KafkaJobsTopic string `env:"KAFKA_JOBS_TOPIC" env-default:"ingest-jobs"`

	// afs URL of the encrypted secret store, e.g. file:///var/lib/trellis/secrets
	SecretStoreURL string `env:"SECRET_STORE_URL" env-default:"mem://localhost/trellis/secrets"`
	// scy key used to encrypt stored secrets
	SecretStoreKey string `env:"SECRET_STORE_KEY" env-default:"blowfish://default"`

	// HMAC secret for inline OAuth state tokens
	OAuthStateSecret string `env:"OAUTH_STATE_SECRET" env-required:"true"`
	// Timeout of every outbound provider call
	OutboundTimeout time.Duration `env:"OUTBOUND_HTTP_TIMEOUT" env-default:"30s"`

	SlackClientID         string `env:"SLACK_CLIENT_ID"`
	SlackClientSecret     string `env:"SLACK_CLIENT_SECRET"`
	AsanaClientID         string `env:"ASANA_CLIENT_ID"`
	AsanaClientSecret     string `env:"ASANA_CLIENT_SECRET"`
	ClickUpClientID       string `env:"CLICKUP_CLIENT_ID"`
	ClickUpClientSecret   string `env:"CLICKUP_CLIENT_SECRET"`
	GitLabClientID        string `env:"GITLAB_CLIENT_ID"`
	GitLabClientSecret    string `env:"GITLAB_CLIENT_SECRET"`
	IntercomClientID      string `env:"INTERCOM_CLIENT_ID"`
	IntercomClientSecret  string `env:"INTERCOM_CLIENT_SECRET"`
	ZendeskClientID       string `env:"ZENDESK_CLIENT_ID"`
	ZendeskClientSecret   string `env:"ZENDESK_CLIENT_SECRET"`
	PipedriveClientID     string `env:"PIPEDRIVE_CLIENT_ID"`
	PipedriveClientSecret string `env:"PIPEDRIVE_CLIENT_SECRET"`
	JiraClientID          string `env:"JIRA_CLIENT_ID"`
	JiraClientSecret      string `env:"JIRA_CLIENT_SECRET"`

	// Enable OTLP tracing export
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}

// Load reads an optional .env file and then the environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return &cfg, nil
}

// DatabaseDSN is the lib/pq connection string.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUserName, c.DatabasePassword, c.DatabaseName, c.DatabaseSSLMode)
}
