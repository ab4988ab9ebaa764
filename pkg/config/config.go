package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration values.
type Config struct {
	Port             string
	RabbitMQ_URL     string
	Postgres_DSN     string
	MinIO_Endpoint   string
	MinIO_AccessKey  string
	MinIO_SecretKey  string
	MinIO_UseSSL     bool
	MinIO_BucketName string

	// Azure DevOps connection for story sync and test-case push.
	AzureOrgURL  string // e.g. https://dev.azure.com/myorg
	AzurePAT     string // personal access token
	AzureProject string // default project when a request names none

	// OpenAI connection for the suggestion endpoint.
	OpenAI_BaseURL string
	OpenAI_APIKey  string
	OpenAI_Model   string

	LogLevel       string // e.g., "debug", "info", "warn", "error"
	RequestTimeout time.Duration
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Helper to get env var with default
	getenv := func(key, fallback string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return fallback
	}

	// Helper to get bool env var
	getenvBool := func(key string, fallback bool) bool {
		if valueStr, exists := os.LookupEnv(key); exists {
			value, err := strconv.ParseBool(valueStr)
			if err == nil {
				return value
			}
		}
		return fallback
	}

	// Helper to get duration env var
	getenvDuration := func(key string, fallback time.Duration) time.Duration {
		if valueStr, exists := os.LookupEnv(key); exists {
			value, err := time.ParseDuration(valueStr)
			if err == nil {
				return value
			}
		}
		return fallback
	}

	cfg := &Config{
		Port:             getenv("PORT", "8080"),
		RabbitMQ_URL:     getenv("RABBITMQ_URL", "amqp://localhost:5672/"),
		Postgres_DSN:     getenv("POSTGRES_DSN", "postgres://localhost:5432/testcraft_db?sslmode=disable"),
		MinIO_Endpoint:   getenv("MINIO_ENDPOINT", "localhost:9000"),
		MinIO_AccessKey:  getenv("MINIO_ACCESS_KEY", ""), // must be set in .env
		MinIO_SecretKey:  getenv("MINIO_SECRET_KEY", ""), // must be set in .env
		MinIO_UseSSL:     getenvBool("MINIO_USE_SSL", false),
		MinIO_BucketName: getenv("MINIO_BUCKET_NAME", "testcase-exports"),
		AzureOrgURL:      getenv("AZURE_DEVOPS_ORG_URL", ""),
		AzurePAT:         getenv("AZURE_DEVOPS_PAT", ""),
		AzureProject:     getenv("AZURE_DEVOPS_PROJECT", ""),
		OpenAI_BaseURL:   getenv("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAI_APIKey:    getenv("OPENAI_API_KEY", ""),
		OpenAI_Model:     getenv("OPENAI_MODEL", "gpt-4o-mini"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		RequestTimeout:   getenvDuration("REQUEST_TIMEOUT", 15*time.Second),
	}

	return cfg, nil
}
