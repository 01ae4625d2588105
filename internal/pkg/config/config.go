package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Admin     AdminConfig
	Drive     DriveConfig
	Caption   CaptionConfig
	RateLimit RateLimitConfig
	Ingest    IngestConfig
}

type AppConfig struct {
	Name string
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig backs both the Queue broker (C5) and the thumbnail-URL cache.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type AdminConfig struct {
	Token string // gates the admin log-tailing endpoint; falls back to JWT secret if unset
}

type DriveConfig struct {
	ClientID         string
	ClientSecret     string
	RedirectURL      string
	WebhookURL       string
	ServiceKeyPath   string // service-account key used when no per-request credential is supplied
}

type CaptionConfig struct {
	APIKey string
	Model  string
	// VectorDim is the fixed embedding dimension D persisted in the vector column.
	VectorDim int
}

// RateLimitConfig configures both C1 limiters: captioning/embedding and drive.
type RateLimitConfig struct {
	CaptionMaxPerWindow int
	CaptionWindowMs     int
	CaptionBurstMax     int
	CaptionBurstWindowMs int

	DriveMaxPerWindow int
	DriveWindowMs     int
}

type IngestConfig struct {
	MaxImagesPerFolder int // 0 means unlimited
	FolderConcurrency  int
	ImageConcurrency   int
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // ignore error if .env doesn't exist

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	vectorDim, _ := strconv.Atoi(getEnv("CAPTION_VECTOR_DIM", "768"))
	maxImages, _ := strconv.Atoi(getEnv("MAX_IMAGES_PER_FOLDER", "0"))

	captionMaxPerWindow, _ := strconv.Atoi(getEnv("CAPTION_RATE_MAX_PER_WINDOW", "15"))
	captionWindowMs, _ := strconv.Atoi(getEnv("CAPTION_RATE_WINDOW_MS", "60000"))
	captionBurstMax, _ := strconv.Atoi(getEnv("CAPTION_RATE_BURST_MAX", "5"))
	captionBurstWindowMs, _ := strconv.Atoi(getEnv("CAPTION_RATE_BURST_WINDOW_MS", "1000"))

	driveMaxPerWindow, _ := strconv.Atoi(getEnv("DRIVE_RATE_MAX_PER_WINDOW", "10000"))
	driveWindowMs, _ := strconv.Atoi(getEnv("DRIVE_RATE_WINDOW_MS", "60000"))

	folderConcurrency, _ := strconv.Atoi(getEnv("FOLDER_WORKER_CONCURRENCY", "5"))
	imageConcurrency, _ := strconv.Atoi(getEnv("IMAGE_WORKER_CONCURRENCY", "10"))

	config := &Config{
		App: AppConfig{
			Name: getEnv("APP_NAME", "Drive Ingest Service"),
			Port: getEnv("APP_PORT", "3000"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "driveingest"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key"),
		},
		Admin: AdminConfig{
			Token: getEnv("ADMIN_TOKEN", ""),
		},
		Drive: DriveConfig{
			ClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:    getEnv("GOOGLE_DRIVE_REDIRECT_URL", "http://localhost:3000/api/v1/drive/callback"),
			WebhookURL:     getEnv("GOOGLE_DRIVE_WEBHOOK_URL", ""),
			ServiceKeyPath: getEnv("GOOGLE_DRIVE_SERVICE_KEY_PATH", ""),
		},
		Caption: CaptionConfig{
			APIKey:    getEnv("GEMINI_API_KEY", ""),
			Model:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			VectorDim: vectorDim,
		},
		RateLimit: RateLimitConfig{
			CaptionMaxPerWindow:  captionMaxPerWindow,
			CaptionWindowMs:      captionWindowMs,
			CaptionBurstMax:      captionBurstMax,
			CaptionBurstWindowMs: captionBurstWindowMs,
			DriveMaxPerWindow:    driveMaxPerWindow,
			DriveWindowMs:        driveWindowMs,
		},
		Ingest: IngestConfig{
			MaxImagesPerFolder: maxImages,
			FolderConcurrency:  folderConcurrency,
			ImageConcurrency:   imageConcurrency,
		},
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
