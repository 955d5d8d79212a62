package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Script    ScriptConfig
	Image     ImageConfig
	Speech    SpeechConfig
	Storage   StorageConfig
	Media     MediaConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	GeneratePerHour   int
	RegeneratePerHour int
	AssemblePerHour   int
}

// ScriptConfig configures the LLM scriptwriter backend
type ScriptConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ImageConfig configures the image synthesis backend
type ImageConfig struct {
	APIKey  string
	BaseURL string
	Timeout int // seconds
}

// SpeechConfig configures the speech synthesis backend
type SpeechConfig struct {
	APIKey  string
	BaseURL string
	Timeout int // seconds
}

// StorageConfig configures the S3-compatible object store for final videos
type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

// MediaConfig configures local media tooling and scratch space
type MediaConfig struct {
	Root       string // scratch directory for intermediate assets
	FFmpegBin  string
	FFprobeBin string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("SCRIPT_API_KEY")
	readSecret("IMAGE_API_KEY")
	readSecret("SPEECH_API_KEY")
	readSecret("STORAGE_ACCOUNT_ID")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("script.api_key", "SCRIPT_API_KEY")
	_ = viper.BindEnv("script.base_url", "SCRIPT_BASE_URL")
	_ = viper.BindEnv("script.model", "SCRIPT_MODEL")
	_ = viper.BindEnv("image.api_key", "IMAGE_API_KEY")
	_ = viper.BindEnv("image.base_url", "IMAGE_BASE_URL")
	_ = viper.BindEnv("image.timeout", "IMAGE_TIMEOUT")
	_ = viper.BindEnv("speech.api_key", "SPEECH_API_KEY")
	_ = viper.BindEnv("speech.base_url", "SPEECH_BASE_URL")
	_ = viper.BindEnv("speech.timeout", "SPEECH_TIMEOUT")
	_ = viper.BindEnv("storage.account_id", "STORAGE_ACCOUNT_ID")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = viper.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = viper.BindEnv("media.root", "MEDIA_ROOT")
	_ = viper.BindEnv("media.ffmpeg_bin", "FFMPEG_BIN")
	_ = viper.BindEnv("media.ffprobe_bin", "FFPROBE_BIN")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.generate_per_hour", 5)
	viper.SetDefault("ratelimit.regenerate_per_hour", 20)
	viper.SetDefault("ratelimit.assemble_per_hour", 10)

	// Scriptwriter defaults
	viper.SetDefault("script.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("script.model", "llama-3.3-70b-versatile")

	// Synthesis backend defaults
	viper.SetDefault("image.base_url", "http://localhost:8085")
	viper.SetDefault("image.timeout", 180)
	viper.SetDefault("speech.base_url", "http://localhost:8086")
	viper.SetDefault("speech.timeout", 120)

	// Media defaults
	viper.SetDefault("media.root", "./media")
	viper.SetDefault("media.ffmpeg_bin", "ffmpeg")
	viper.SetDefault("media.ffprobe_bin", "ffprobe")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour:   viper.GetInt("ratelimit.generate_per_hour"),
			RegeneratePerHour: viper.GetInt("ratelimit.regenerate_per_hour"),
			AssemblePerHour:   viper.GetInt("ratelimit.assemble_per_hour"),
		},
		Script: ScriptConfig{
			APIKey:  viper.GetString("script.api_key"),
			BaseURL: viper.GetString("script.base_url"),
			Model:   viper.GetString("script.model"),
		},
		Image: ImageConfig{
			APIKey:  viper.GetString("image.api_key"),
			BaseURL: viper.GetString("image.base_url"),
			Timeout: viper.GetInt("image.timeout"),
		},
		Speech: SpeechConfig{
			APIKey:  viper.GetString("speech.api_key"),
			BaseURL: viper.GetString("speech.base_url"),
			Timeout: viper.GetInt("speech.timeout"),
		},
		Storage: StorageConfig{
			AccountID:       viper.GetString("storage.account_id"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			BucketName:      viper.GetString("storage.bucket_name"),
			PublicURL:       viper.GetString("storage.public_url"),
		},
		Media: MediaConfig{
			Root:       viper.GetString("media.root"),
			FFmpegBin:  viper.GetString("media.ffmpeg_bin"),
			FFprobeBin: viper.GetString("media.ffprobe_bin"),
		},
	}

	return cfg, nil
}
