package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
	// PingTimeout bounds the startup connectivity check.
	PingTimeout time.Duration
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// AttachmentConfig controls how entity images are stored and exposed.
type AttachmentConfig struct {
	// Prefix is the object key prefix under which uploaded images are stored.
	Prefix string
	// URLTTL is the validity window of issued read URLs.
	URLTTL time.Duration
	// UploadTimeout bounds an upload that outlives its originating request.
	UploadTimeout time.Duration
	// CleanupOnFailure deletes an uploaded image when the enclosing create fails.
	CleanupOnFailure bool
}

// EntityStoreConfig selects the entity store backend.
type EntityStoreConfig struct {
	Backend   string // postgres|pebble
	PebbleDir string
}

// KafkaConfig holds queue settings. An empty broker list disables the consumers.
type KafkaConfig struct {
	Brokers       []string
	GroupID       string
	TopicOrder    string
	TopicProduct  string
	TopicCustomer string
	Deduplicate   bool
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// FileShareConfig holds settings for the plain per-kind file area.
type FileShareConfig struct {
	Prefix string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost     string
	Port        string
	Timezone    string
	LogLevel    string
	BodyLimit   int // bytes; applies to streamed bodies too
	Database    DatabaseConfig
	MinIO       MinIOConfig
	Attachment  AttachmentConfig
	EntityStore EntityStoreConfig
	Kafka       KafkaConfig
	FileShare   FileShareConfig
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:   getEnv("APP_HOST", "localhost:8080"),
		Port:      getEnv("PORT", "8080"), // default only for non-sensitive value
		Timezone:  getEnv("APP_TIMEZONE", "UTC"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		BodyLimit: getEnvInt("HTTP_BODY_LIMIT_BYTES", 64<<20),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
			PingTimeout:        getEnvDuration("DB_PING_TIMEOUT", 5*time.Second),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Attachment: AttachmentConfig{
			Prefix:           getEnv("ATTACHMENT_PREFIX", "images"),
			URLTTL:           getEnvDuration("ATTACHMENT_URL_TTL", time.Hour),
			UploadTimeout:    getEnvDuration("ATTACHMENT_UPLOAD_TIMEOUT", 5*time.Minute),
			CleanupOnFailure: getEnvBool("ATTACHMENT_CLEANUP_ON_FAILURE", true),
		},
		EntityStore: EntityStoreConfig{
			Backend:   strings.ToLower(getEnv("ENTITY_STORE", "postgres")),
			PebbleDir: getEnv("PEBBLE_DIR", "./data/entities"),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvList("KAFKA_BROKERS"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "retailapi"),
			TopicOrder:    getEnv("KAFKA_TOPIC_ORDER", "orders"),
			TopicProduct:  getEnv("KAFKA_TOPIC_PRODUCT", "products"),
			TopicCustomer: getEnv("KAFKA_TOPIC_CUSTOMER", "customers"),
			Deduplicate:   getEnvBool("QUEUE_DEDUPLICATE", false),
		},
		FileShare: FileShareConfig{
			Prefix: getEnv("FILESHARE_PREFIX", "uploads"),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
