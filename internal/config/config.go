package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string

	// Secrets (optional; when set, /metrics requires the shared secret)
	InternalSharedSecret string

	// Limits
	MaxImageBytes   int64
	MaxFiltersBytes int64

	// Concurrency
	MaxConcurrentRequests int64
	MaxOCRConcurrent      int64
	MaxDetectorParallel   int

	// Server timeouts
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// Request timeouts
	UploadTimeout   time.Duration
	OCRTimeout      time.Duration
	DetectorTimeout time.Duration

	// rate limiting (per IP)
	RateLimitEvery time.Duration
	RateLimitBurst int

	// housekeeping
	CleanupInterval time.Duration

	// health
	HealthDegradeRatio float64

	// http
	MaxHeaderBytes int

	// OCR engine
	TesseractLanguages []string

	// Inference sidecars. An empty endpoint disables the detector; requests
	// selecting its categories report it under failed_filters.
	NEREndpoint         string
	FaceEndpoint        string
	SignatureEndpoint   string
	FingerprintEndpoint string

	// Logging
	LogLevel string
	LogJSON  bool
}

func Load() Config {
	// Best effort: a missing .env is the normal production case.
	_ = godotenv.Load()

	return Config{
		Port: envStr("PORT", "8080"),

		InternalSharedSecret: envStr("INTERNAL_SHARED_SECRET", ""),

		MaxImageBytes:   int64(envInt("MAX_IMAGE_BYTES", 25<<20)),
		MaxFiltersBytes: int64(envInt("MAX_FILTERS_BYTES", 16<<10)),

		MaxConcurrentRequests: int64(envInt("MAX_CONCURRENT_REQUESTS", 15)),
		MaxOCRConcurrent:      int64(envInt("MAX_OCR_CONCURRENT", 3)),
		MaxDetectorParallel:   envInt("MAX_DETECTOR_PARALLEL", 4),

		ReadHeaderTimeout: envDur("READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:       envDur("READ_TIMEOUT", 60*time.Second),
		WriteTimeout:      envDur("WRITE_TIMEOUT", 180*time.Second),
		IdleTimeout:       envDur("IDLE_TIMEOUT", 60*time.Second),

		UploadTimeout:   envDur("UPLOAD_TIMEOUT", 120*time.Second),
		OCRTimeout:      envDur("OCR_TIMEOUT", 45*time.Second),
		DetectorTimeout: envDur("DETECTOR_TIMEOUT", 30*time.Second),

		RateLimitEvery: envDur("RATE_LIMIT_EVERY", 600*time.Millisecond),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),

		CleanupInterval: envDur("CLEANUP_INTERVAL", 5*time.Minute),

		HealthDegradeRatio: envFloat("HEALTH_DEGRADE_RATIO", 0.9),

		MaxHeaderBytes: envInt("MAX_HEADER_BYTES", 1<<20),

		TesseractLanguages: envList("TESSERACT_LANGUAGES", "eng"),

		NEREndpoint:         envStr("NER_ENDPOINT", ""),
		FaceEndpoint:        envStr("FACE_ENDPOINT", ""),
		SignatureEndpoint:   envStr("SIGNATURE_ENDPOINT", ""),
		FingerprintEndpoint: envStr("FINGERPRINT_ENDPOINT", ""),

		LogLevel: envStr("LOG_LEVEL", "info"),
		LogJSON:  envBool("LOG_JSON", false),
	}
}

func (c Config) Validate() error {
	if s := strings.TrimSpace(c.InternalSharedSecret); s != "" && len(s) < 32 {
		return fmt.Errorf("INTERNAL_SHARED_SECRET must be at least 32 characters when set")
	}
	if c.HealthDegradeRatio <= 0 || c.HealthDegradeRatio > 1 {
		return fmt.Errorf("HEALTH_DEGRADE_RATIO must be in (0,1]")
	}
	return nil
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envList(key, fallback string) []string {
	v := envStr(key, fallback)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
