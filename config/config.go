package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/linesmerrill/emergency-report-api/models"
)

// Analyzer modes
const (
	AnalyzerEnabled  = "enabled"
	AnalyzerDisabled = "disabled"
)

// Config holds the project config values
type Config struct {
	URL          string
	DatabaseName string
	BaseURL      string
	Port         string
	Env          string

	AnalyzerMode    string
	AnalyzerAPIKey  string
	AnalyzerAPIURL  string
	AnalyzerModel   string
	AnalyzerTimeout time.Duration

	TuningPath        string
	IdempotencyWindow time.Duration
	JWTSecret         string
	AMQPURL           string
	SentryDSN         string
	// MediaFileRoot is the only directory file:// media may be read from.
	// Empty disables file media.
	MediaFileRoot string

	// Tuning is the startup snapshot of thresholds and lexicons. Use a
	// TuningStore for reads after startup so hot reloads are observed.
	Tuning *Tuning
}

// New sets up all config related services
func New() *Config {
	env := os.Getenv("ENV")

	//setup zap logger and replace default logger
	logger, err := setLogger(env)
	if err != nil {
		logger = zap.NewExample()
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	c := &Config{
		URL:          os.Getenv("DB_URI"),
		DatabaseName: getEnv("DB_NAME", "evlc"),
		BaseURL:      os.Getenv("BASE_URL"),
		Port:         getEnv("PORT", "8080"),
		Env:          env,

		AnalyzerMode:    strings.ToLower(getEnv("ANALYZER_MODE", AnalyzerEnabled)),
		AnalyzerAPIKey:  os.Getenv("ANALYZER_API_KEY"),
		AnalyzerAPIURL:  getEnv("ANALYZER_API_URL", "https://api.openai.com/v1/chat/completions"),
		AnalyzerModel:   getEnv("ANALYZER_MODEL", "gpt-4o-mini"),
		AnalyzerTimeout: time.Duration(getEnvInt("ANALYZER_TIMEOUT_MS", 10000)) * time.Millisecond,

		TuningPath:        getEnv("EVLC_TUNING_PATH", "evlc.yaml"),
		IdempotencyWindow: time.Duration(getEnvInt("IDEMPOTENCY_WINDOW_SECONDS", 60)) * time.Second,
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AMQPURL:           os.Getenv("AMQP_URL"),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		MediaFileRoot:     os.Getenv("MEDIA_FILE_ROOT"),
	}

	t, err := LoadTuning(c.TuningPath)
	if err != nil {
		zap.S().Warnw("failed to load tuning file, using defaults",
			"path", c.TuningPath,
			"error", err)
		t = DefaultTuning()
	}
	if overridden, err := ApplyEnvOverrides(t); err != nil {
		zap.S().Warnw("ignoring invalid tuning overrides, keeping file values", "error", err)
	} else {
		t = overridden
	}
	c.Tuning = t

	return c
}

// Validate checks the values that are required for the service to start
func (c *Config) Validate() error {
	switch c.AnalyzerMode {
	case AnalyzerEnabled:
		if strings.TrimSpace(c.AnalyzerAPIKey) == "" {
			return errors.New("ANALYZER_API_KEY must be set unless ANALYZER_MODE=disabled")
		}
	case AnalyzerDisabled:
	default:
		return fmt.Errorf("ANALYZER_MODE must be %q or %q, got %q", AnalyzerEnabled, AnalyzerDisabled, c.AnalyzerMode)
	}
	if c.AnalyzerTimeout <= 0 {
		return errors.New("ANALYZER_TIMEOUT_MS must be positive")
	}
	if c.IdempotencyWindow <= 0 {
		return errors.New("IDEMPOTENCY_WINDOW_SECONDS must be positive")
	}
	if c.Tuning == nil {
		return errors.New("tuning is not loaded")
	}
	return c.Tuning.Validate()
}

// ApplyEnvOverrides returns a copy of base with the enumerated environment
// overrides applied. base is never modified; an invalid result is an error.
func ApplyEnvOverrides(base *Tuning) (*Tuning, error) {
	c := *base
	t := &c
	if raw := os.Getenv("FUSION_THRESHOLDS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &t.Thresholds); err != nil {
			return nil, fmt.Errorf("FUSION_THRESHOLDS: %w", err)
		}
	}
	// LEXICONS is a JSON object keyed like the tuning file; lists not named keep their values
	if raw := os.Getenv("LEXICONS"); raw != "" {
		if err := yaml.Unmarshal([]byte(raw), &t.Lexicons); err != nil {
			return nil, fmt.Errorf("LEXICONS: %w", err)
		}
	}
	if v, ok := lookupFloat("DEDUP_RADIUS_METERS"); ok {
		t.Dedup.RadiusMeters = v
	}
	if v, ok := lookupFloat("DEDUP_WINDOW_SECONDS"); ok {
		t.Dedup.WindowSeconds = int(v)
	}
	if v, ok := lookupFloat("DEDUP_TEXT_SIMILARITY"); ok {
		t.Dedup.TextSimilarity = v
	}
	if v, ok := lookupFloat("COMMUNITY_VOTE_MIN"); ok {
		t.Votes.CommunityMin = int(v)
	}
	if v, ok := lookupFloat("COMMUNITY_VOTE_MAJORITY_PCT"); ok {
		t.Votes.MajorityPct = v
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().With(zap.Error(err)).Error(message)
	if httpStatusCode >= http.StatusInternalServerError {
		sentry.CaptureException(err)
	}
	body := models.ToMessageError(err)
	if models.CodeOf(err) == models.CodeInternal {
		body.Message = message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	_ = json.NewEncoder(w).Encode(models.ErrorMessageResponse{Response: body})
}

// HTTPStatusFor maps an error code onto the status written by ErrorStatus
func HTTPStatusFor(err error) int {
	switch models.CodeOf(err) {
	case models.CodeValidation:
		return http.StatusBadRequest
	case models.CodeDedupConflict, models.CodeInvalidTransition:
		return http.StatusConflict
	case models.CodeStoreConflict:
		return http.StatusServiceUnavailable
	case models.CodePermissionDenied:
		return http.StatusForbidden
	case models.CodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		zap.S().Warnw("invalid integer env value, using default", "key", key, "value", val, "default", fallback)
		return fallback
	}
	return n
}

func lookupFloat(key string) (float64, bool) {
	val := os.Getenv(key)
	if val == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		zap.S().Warnw("invalid numeric env value, ignoring", "key", key, "value", val)
		return 0, false
	}
	return f, true
}
