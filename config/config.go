package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment  string
	HTTPPort     string
	HTTPSPort    string
	Domains      []string
	CertCacheDir string

	DatabaseURL string

	OCREndpoint    string
	OCRAPIKey      string
	OCRConcurrency int

	EmbeddingEndpoint   string
	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingMaxChars   int

	GeminiAPIURL        string
	GeminiAPIKey        string
	GeminiModel         string
	GeminiFallbackModel string

	ChunkMaxChars     int
	ChunkOverlapChars int
	RetrievalK        int
	RasterDPI         int

	IndexMaintenanceInterval time.Duration

	LogDir string
}

var isTest bool

func init() {
	isTest = os.Getenv("GO_ENVIRONMENT") == "test"
	if !isTest {
		err := godotenv.Load()
		if err != nil {
			log.Println("Warning: Error loading .env file:", err)
		}
	}
}

func Load() Config {
	return Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		HTTPPort:     getEnv("HTTP_PORT", "8086"),
		HTTPSPort:    getEnv("HTTPS_PORT", "443"),
		Domains:      []string{getEnv("DOMAIN", "example.com")},
		CertCacheDir: getEnv("CERT_CACHE_DIR", "/etc/letsencrypt/live/example.com"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		OCREndpoint:    getEnv("OCR_ENDPOINT", "https://vision.googleapis.com"),
		OCRAPIKey:      getEnv("OCR_API_KEY", ""),
		OCRConcurrency: getEnvAsInt("OCR_CONCURRENCY", 4),

		EmbeddingEndpoint:   getEnv("EMBEDDING_ENDPOINT", "https://api.openai.com/v1/embeddings"),
		EmbeddingAPIKey:     getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 384),
		EmbeddingMaxChars:   getEnvAsInt("EMBEDDING_MAX_CHARS", 8000),

		GeminiAPIURL:        getEnv("GEMINI_API_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiFallbackModel: getEnv("GEMINI_FALLBACK_MODEL", "gemini-2.5-flash-lite"),

		ChunkMaxChars:     getEnvAsInt("CHUNK_MAX_CHARS", 1200),
		ChunkOverlapChars: getEnvAsInt("CHUNK_OVERLAP_CHARS", 100),
		RetrievalK:        getEnvAsInt("RETRIEVAL_K", 3),
		RasterDPI:         getEnvAsInt("RASTER_DPI", 300),

		IndexMaintenanceInterval: time.Duration(getEnvAsInt("INDEX_MAINTENANCE_INTERVAL", 3600)) * time.Second,

		LogDir: getEnv("LOG_DIR", "logs"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}
