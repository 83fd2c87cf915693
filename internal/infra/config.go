package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	AssetHostNone       = "none"
	AssetHostCloudinary = "cloudinary"
	AssetHostCOS        = "cos"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	StoragePath        string
	StorageBaseURL     string
	ArchiveWebP        bool
	PromptProvider     string
	GeminiAPIKey       string
	GeminiBaseURL      string
	GeminiTextModel    string
	GeminiImageModel   string
	GeminiImagenModel  string
	GeminiVideoModel   string
	GeminiRPM          int
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	AssetHost          string
	CloudinaryCloud    string
	CloudinaryPreset   string
	COSBucketURL       string
	COSSecretID        string
	COSSecretKey       string
	FFmpegPath         string
	FFprobePath        string
	IngestMaxFrames    int
	IngestAudioRate    int
	IngestMissingAudio string
	IngestTimeout      time.Duration
	MaxUploadBytes     int64
	VideoPollInterval  time.Duration
	VideoPollTimeout   time.Duration
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               port,
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		StoragePath:        getEnv("STORAGE_PATH", "./data/assets"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),
		ArchiveWebP:        getEnvBool("HISTORY_ARCHIVE_WEBP", false),
		PromptProvider:     strings.ToLower(getEnv("PROMPT_PROVIDER", "gemini")),
		GeminiAPIKey:       strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiBaseURL:      os.Getenv("GEMINI_BASE_URL"),
		GeminiTextModel:    getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GeminiImageModel:   getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiImagenModel:  getEnv("GEMINI_IMAGEN_MODEL", "imagen-4.0-generate-001"),
		GeminiVideoModel:   getEnv("GEMINI_VIDEO_MODEL", "veo-3.1-fast-generate-preview"),
		GeminiRPM:          getEnvInt("GEMINI_REQUESTS_PER_MINUTE", 60),
		OpenAIAPIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AssetHost:          strings.ToLower(getEnv("ASSET_HOST", AssetHostNone)),
		CloudinaryCloud:    os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryPreset:   os.Getenv("CLOUDINARY_UPLOAD_PRESET"),
		COSBucketURL:       os.Getenv("COS_BUCKET_URL"),
		COSSecretID:        os.Getenv("COS_SECRET_ID"),
		COSSecretKey:       os.Getenv("COS_SECRET_KEY"),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		IngestMaxFrames:    getEnvInt("INGEST_MAX_FRAMES", 60),
		IngestAudioRate:    getEnvInt("INGEST_AUDIO_RATE", 16000),
		IngestMissingAudio: getEnv("INGEST_ON_MISSING_AUDIO", "fail"),
		IngestTimeout:      getEnvDuration("INGEST_TIMEOUT", 10*time.Minute),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", 200)) << 20,
		VideoPollInterval:  getEnvDuration("VIDEO_POLL_INTERVAL", 10*time.Second),
		VideoPollTimeout:   getEnvDuration("VIDEO_POLL_TIMEOUT", 10*time.Minute),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 60)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 660)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.PromptProvider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("PROMPT_PROVIDER must be gemini or openai, got %q", c.PromptProvider)
	}
	switch c.IngestMissingAudio {
	case "fail", "proceedSilently":
	default:
		return fmt.Errorf("INGEST_ON_MISSING_AUDIO must be fail or proceedSilently, got %q", c.IngestMissingAudio)
	}
	switch c.AssetHost {
	case AssetHostNone:
	case AssetHostCloudinary:
		if c.CloudinaryCloud == "" || c.CloudinaryPreset == "" {
			return fmt.Errorf("CLOUDINARY_CLOUD_NAME and CLOUDINARY_UPLOAD_PRESET are required when ASSET_HOST=cloudinary")
		}
	case AssetHostCOS:
		if c.COSBucketURL == "" {
			return fmt.Errorf("COS_BUCKET_URL is required when ASSET_HOST=cos")
		}
	default:
		return fmt.Errorf("ASSET_HOST must be none, cloudinary or cos, got %q", c.AssetHost)
	}
	if c.IngestMaxFrames <= 0 {
		return fmt.Errorf("INGEST_MAX_FRAMES must be positive")
	}
	if c.IngestAudioRate <= 0 {
		return fmt.Errorf("INGEST_AUDIO_RATE must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
