package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Wasabi      WasabiConfig
	GoogleDrive GoogleDriveConfig
	Speech      SpeechConfig
	Agent       AgentConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// WasabiConfig holds S3-compatible (Wasabi) storage settings.
type WasabiConfig struct {
	Region               string
	Endpoint             string // e.g. https://s3.us-east-1.wasabisys.com
	AccessKeyID          string
	SecretAccessKey      string
	Bucket               string
	ArchiveBucket        string // transcript archives; falls back to Bucket when empty
	PresignExpireMinutes int
}

// GoogleDriveConfig holds OAuth credentials for the Drive storage provider.
type GoogleDriveConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	FolderID     string // parent folder for recordings; empty = Drive root
}

// SpeechConfig holds speech orchestrator tuning.
type SpeechConfig struct {
	Provider           string // "native" or "cloud"
	FallbackProvider   string
	MaxRestartAttempts int
	BaseRestartDelayMs int
	MaxRestartDelayMs  int
	FlushIntervalSec   int
	Language           string
	CloudAuthKey       string // cloud STT API key (token exchange)
	CloudTokenURL      string
	CloudStreamURL     string // wss endpoint
}

// AgentConfig holds the companion speech agent settings.
type AgentConfig struct {
	ServerURL string // backend base URL for transcript chunk uploads
	RoomID    string
	Token     string // JWT for the participant running the agent
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "critroll"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		Wasabi: WasabiConfig{
			Region:               getEnv("WASABI_REGION", "us-east-1"),
			Endpoint:             getEnv("WASABI_ENDPOINT", "https://s3.us-east-1.wasabisys.com"),
			AccessKeyID:          getEnv("WASABI_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("WASABI_SECRET_ACCESS_KEY", ""),
			Bucket:               getEnv("WASABI_RECORDINGS_BUCKET", "critroll-recordings"),
			ArchiveBucket:        getEnv("WASABI_ARCHIVE_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("WASABI_PRESIGN_EXPIRE_MINUTES", 60),
		},
		GoogleDrive: GoogleDriveConfig{
			ClientID:     getEnv("GDRIVE_CLIENT_ID", ""),
			ClientSecret: getEnv("GDRIVE_CLIENT_SECRET", ""),
			RefreshToken: getEnv("GDRIVE_REFRESH_TOKEN", ""),
			FolderID:     getEnv("GDRIVE_FOLDER_ID", ""),
		},
		Speech: SpeechConfig{
			Provider:           getEnv("SPEECH_PROVIDER", "native"),
			FallbackProvider:   getEnv("SPEECH_FALLBACK_PROVIDER", "native"),
			MaxRestartAttempts: getEnvInt("SPEECH_MAX_RESTART_ATTEMPTS", 3),
			BaseRestartDelayMs: getEnvInt("SPEECH_BASE_RESTART_DELAY_MS", 1000),
			MaxRestartDelayMs:  getEnvInt("SPEECH_MAX_RESTART_DELAY_MS", 30000),
			FlushIntervalSec:   getEnvInt("SPEECH_FLUSH_INTERVAL_SEC", 10),
			Language:           getEnv("SPEECH_LANGUAGE", "en-US"),
			CloudAuthKey:       getEnv("SPEECH_CLOUD_AUTH_KEY", ""),
			CloudTokenURL:      getEnv("SPEECH_CLOUD_TOKEN_URL", "https://api.assemblyai.com/v2/realtime/token"),
			CloudStreamURL:     getEnv("SPEECH_CLOUD_STREAM_URL", "wss://api.assemblyai.com/v2/realtime/ws"),
		},
		Agent: AgentConfig{
			ServerURL: getEnv("AGENT_SERVER_URL", "http://localhost:8080"),
			RoomID:    getEnv("AGENT_ROOM_ID", ""),
			Token:     getEnv("AGENT_TOKEN", ""),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
