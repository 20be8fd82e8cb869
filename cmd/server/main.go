package main

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	// Decoders for the upload formats beyond PNG/JPEG/GIF.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/visualpii/redactor/internal/config"
	"github.com/visualpii/redactor/internal/detect"
	"github.com/visualpii/redactor/internal/entity"
	"github.com/visualpii/redactor/internal/ocr"
	"github.com/visualpii/redactor/internal/pipeline"
	"github.com/visualpii/redactor/internal/redact"
)

const version = "1.0.0"

var (
	cfg config.Config
	log = logrus.New()

	requestSem *semaphore.Weighted
	ocrSem     *semaphore.Weighted

	// Per-IP rate limiters
	limiters = &sync.Map{}

	metrics = &serverMetrics{}
)

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}
func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}
func (m *serverMetrics) get() (total, active int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs
}

func main() {
	cfg = config.Load()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	if cfg.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	requestSem = semaphore.NewWeighted(cfg.MaxConcurrentRequests)
	ocrSem = semaphore.NewWeighted(cfg.MaxOCRConcurrent)

	proc := buildPipeline(cfg)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)
	mux.HandleFunc("/metrics", withInternalAuth(handleMetrics))

	mux.HandleFunc("/upload",
		withCORS(
			withRateLimit(
				withMethod("POST",
					withConcurrencyLimit(func(w http.ResponseWriter, r *http.Request) {
						handleUpload(w, r, proc)
					})))))

	maxHeaderBytes := 1 << 20
	if cfg.MaxHeaderBytes > 0 {
		maxHeaderBytes = cfg.MaxHeaderBytes
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           withLogging(withRecovery(mux)),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	go cleanupRateLimiters()

	log.WithFields(logrus.Fields{
		"addr":           srv.Addr,
		"max_concurrent": cfg.MaxConcurrentRequests,
		"max_ocr":        cfg.MaxOCRConcurrent,
	}).Info("redactor listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}

// buildPipeline constructs the detector adapters once; they are shared,
// read-only inference services for every request.
func buildPipeline(cfg config.Config) *pipeline.Pipeline {
	visual := map[entity.Category]detect.VisualDetector{
		entity.CategoryQRBarcode: detect.NewQRBarcodeDetector(),
	}
	if cfg.FaceEndpoint != "" {
		visual[entity.CategoryFace] = detect.NewFaceDetector(cfg.FaceEndpoint, cfg.DetectorTimeout)
	} else {
		log.Warn("FACE_ENDPOINT not set; Photo detection disabled")
	}
	if cfg.SignatureEndpoint != "" {
		visual[entity.CategorySignature] = detect.NewSignatureDetector(cfg.SignatureEndpoint, cfg.DetectorTimeout)
	} else {
		log.Warn("SIGNATURE_ENDPOINT not set; Signature detection disabled")
	}
	if cfg.FingerprintEndpoint != "" {
		visual[entity.CategoryFingerprint] = detect.NewFingerprintDetector(cfg.FingerprintEndpoint, cfg.DetectorTimeout)
	} else {
		log.Warn("FINGERPRINT_ENDPOINT not set; Fingerprint detection disabled")
	}

	var entities detect.EntityDetector
	if cfg.NEREndpoint != "" {
		entities = detect.NewNERClient(cfg.NEREndpoint, cfg.DetectorTimeout)
	} else {
		log.Warn("NER_ENDPOINT not set; Name and Address detection disabled")
	}

	return &pipeline.Pipeline{
		OCR:             ocr.NewTesseractEngine(cfg.TesseractLanguages),
		Entities:        entities,
		Visual:          visual,
		OCRTimeout:      cfg.OCRTimeout,
		DetectorTimeout: cfg.DetectorTimeout,
		MaxParallel:     cfg.MaxDetectorParallel,
		Log:             log,
	}
}

func cleanupRateLimiters() {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		total, active := metrics.get()
		log.WithFields(logrus.Fields{
			"active":     active,
			"total":      total,
			"goroutines": runtime.NumGoroutine(),
			"mem_mb":     m.Alloc / (1 << 20),
		}).Debug("stats")

		// Drop all per-IP limiters; idle clients re-create theirs on the
		// next request with a fresh burst allowance.
		limiters.Range(func(key, _ any) bool {
			limiters.Delete(key)
			return true
		})
	}
}

// ---------- Handlers ----------

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeErr(w, http.StatusNotFound, "not_found", "No such route")
		return
	}

	_, active := metrics.get()
	status := "healthy"
	code := http.StatusOK

	ratio := cfg.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}

	if active >= int64(float64(cfg.MaxConcurrentRequests)*ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"active":  active,
		"version": version,
	})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total, active := metrics.get()

	writeJSON(w, http.StatusOK, map[string]any{
		"activeRequests": active,
		"totalRequests":  total,
		"goroutines":     runtime.NumGoroutine(),
		"memAllocMB":     m.Alloc / (1 << 20),
		"memSysMB":       m.Sys / (1 << 20),
	})
}

type uploadResponse struct {
	RequestID      string                   `json:"request_id"`
	Filename       string                   `json:"filename"`
	Detections     []entity.DetectionRecord `json:"detections"`
	BlurredImage   string                   `json:"blurred_image"`
	FiltersApplied []string                 `json:"filters_applied"`
	FailedFilters  []string                 `json:"failed_filters,omitempty"`
}

func handleUpload(w http.ResponseWriter, r *http.Request, proc *pipeline.Pipeline) {
	requestID := uuid.NewString()

	ctx, cancel := context.WithTimeout(r.Context(), cfg.UploadTimeout)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxImageBytes+cfg.MaxFiltersBytes+(64<<10))

	filterNames, err := parseFilterField(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_filters", sanitizeError(err))
		return
	}
	requested, err := entity.ParseFilters(filterNames)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "unknown_filter", sanitizeError(err))
		return
	}

	img, filename, err := decodeUploadedImage(r)
	if errors.Is(err, errImageTooLarge) {
		writeErr(w, http.StatusRequestEntityTooLarge, "image_too_large", sanitizeError(err))
		return
	}
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_image", sanitizeError(err))
		return
	}

	// OCR capacity gating: acquire only if text extraction will run.
	if requested.AnyText() {
		if err := ocrSem.Acquire(ctx, 1); err != nil {
			writeErr(w, http.StatusServiceUnavailable, "ocr_capacity", "OCR at capacity")
			return
		}
		defer ocrSem.Release(1)
	}

	result, err := proc.Process(ctx, requestID, img, requested)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "render_failed", sanitizeError(err))
		return
	}

	blurred := result.PNG
	if returnPDF, _ := strconv.ParseBool(r.FormValue("return_pdf")); returnPDF {
		blurred, err = redact.EncodeDocument([]image.Image{result.Page})
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "render_failed", sanitizeError(err))
			return
		}
	}

	detections := result.Detections
	if detections == nil {
		detections = []entity.DetectionRecord{}
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		RequestID:      requestID,
		Filename:       filename,
		Detections:     detections,
		BlurredImage:   base64.StdEncoding.EncodeToString(blurred),
		FiltersApplied: filterNames,
		FailedFilters:  result.Failed,
	})
}

func parseFilterField(r *http.Request) ([]string, error) {
	raw := r.FormValue("filters")
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("filters field required")
	}
	if int64(len(raw)) > cfg.MaxFiltersBytes {
		return nil, fmt.Errorf("filters field too large")
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("filters must be a JSON array of category names: %w", err)
	}
	return names, nil
}

var errImageTooLarge = errors.New("image exceeds size limit")

func decodeUploadedImage(r *http.Request) (image.Image, string, error) {
	file, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("file field required: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, cfg.MaxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > cfg.MaxImageBytes {
		return nil, "", fmt.Errorf("%w of %d bytes", errImageTooLarge, cfg.MaxImageBytes)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("undecodable image: %w", err)
	}

	return img, hdr.Filename, nil
}

// ---------- Middleware ----------

func withMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method must be "+method)
			return
		}
		next(w, r)
	}
}

func withInternalAuth(next http.HandlerFunc) http.HandlerFunc {
	shared := cfg.InternalSharedSecret
	return func(w http.ResponseWriter, r *http.Request) {
		if shared == "" {
			next(w, r)
			return
		}
		got := r.Header.Get("X-Internal-Auth")
		if subtle.ConstantTimeCompare([]byte(got), []byte(shared)) != 1 {
			writeErr(w, http.StatusUnauthorized, "unauthorized", "Invalid authentication")
			return
		}
		next(w, r)
	}
}

func withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func withConcurrencyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requestSem.Acquire(r.Context(), 1); err != nil {
			writeErr(w, http.StatusServiceUnavailable, "capacity", "Service at capacity")
			return
		}
		defer requestSem.Release(1)

		metrics.incActive()
		defer metrics.decActive()

		next(w, r)
	}
}

func withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		limiter := getRateLimiter(ip)

		if !limiter.Allow() {
			w.Header().Set("Retry-After", "60")
			writeErr(w, http.StatusTooManyRequests, "rate_limit", "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.WithField("panic", fmt.Sprint(err)).Error("request panicked")
				writeErr(w, http.StatusInternalServerError, "internal_error", "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &wrapWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     sanitizeLogString(r.URL.Path),
			"status":   ww.status,
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}

type wrapWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrapWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ---------- Helpers ----------

func getRateLimiter(ip string) *rate.Limiter {
	if v, ok := limiters.Load(ip); ok {
		return v.(*rate.Limiter)
	}

	every := cfg.RateLimitEvery
	if every <= 0 {
		every = 600 * time.Millisecond // ~100/min
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}

	limiter := rate.NewLimiter(rate.Every(every), burst)
	limiters.Store(ip, limiter)
	return limiter
}

func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx > 0 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func sanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
