package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"speakerscribe/internal/db"
	"speakerscribe/internal/dispatch"
	"speakerscribe/internal/merge"
	"speakerscribe/utils"
)

// Store drivers.
const (
	StoreDriverSupabase = "supabase"
	StoreDriverSQLite   = "sqlite"
)

// Settings is the process configuration, read from the environment.
type Settings struct {
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=trace debug info warn warning error fatal panic"`

	AudioBucket        string `validate:"required"`
	SupabaseURL        string `validate:"required,url"`
	SupabaseServiceKey string `validate:"required"`

	StoreDriver    string `validate:"oneof=supabase sqlite"`
	SQLitePath     string `validate:"required_if=StoreDriver sqlite"`
	DocumentsTable string `validate:"required"`

	TransformAddr         string `validate:"required"`
	TransformTLS          bool
	TransformToken        string
	TransformTokenURL     string `validate:"omitempty,url"`
	TransformClientID     string `validate:"required_with=TransformTokenURL"`
	TransformClientSecret string `validate:"required_with=TransformTokenURL"`
	TransformAudience     string
	TranscriptionModel    string `validate:"required"`

	DispatchTimeout time.Duration `validate:"gt=0"`
	StorageTimeout  time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	MergeGapBridge         time.Duration `validate:"gte=0"`
	MergePauseSplit        time.Duration `validate:"gte=0"`
	MergeInclusiveBoundary bool
	UnknownSpeakerLabel    string `validate:"required"`

	Workers   int `validate:"min=1,max=256"`
	QueueSize int `validate:"min=1"`

	WebhookSecret string
}

// Load reads the settings from the process environment.
func Load() (*Settings, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the settings through lookup, applies defaults and
// validates the result.
func LoadFrom(lookup func(string) (string, bool)) (*Settings, error) {
	e := env{lookup: lookup}
	s := &Settings{
		Port:     e.str("PORT", "8080"),
		LogLevel: strings.ToLower(e.str("LOG_LEVEL", "info")),

		AudioBucket:        e.str("AUDIO_BUCKET", ""),
		SupabaseURL:        e.str("SUPABASE_URL", ""),
		SupabaseServiceKey: e.str("SUPABASE_SERVICE_KEY", ""),

		StoreDriver:    strings.ToLower(e.str("STORE_DRIVER", StoreDriverSupabase)),
		SQLitePath:     e.str("SQLITE_PATH", ""),
		DocumentsTable: e.str("DOCUMENTS_TABLE", db.DefaultDocumentsTable),

		TransformAddr:         e.str("TRANSFORM_ADDR", ""),
		TransformTLS:          e.boolean("TRANSFORM_TLS", true),
		TransformToken:        e.str("TRANSFORM_TOKEN", ""),
		TransformTokenURL:     e.str("TRANSFORM_TOKEN_URL", ""),
		TransformClientID:     e.str("TRANSFORM_CLIENT_ID", ""),
		TransformClientSecret: e.str("TRANSFORM_CLIENT_SECRET", ""),
		TransformAudience:     e.str("TRANSFORM_AUDIENCE", ""),
		TranscriptionModel:    e.str("TRANSCRIPTION_MODEL", dispatch.DefaultModel),

		DispatchTimeout: e.duration("DISPATCH_TIMEOUT", 30*time.Second),
		StorageTimeout:  e.duration("STORAGE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 30*time.Second),

		MergeGapBridge:         e.duration("MERGE_GAP_BRIDGE", 25*time.Second),
		MergePauseSplit:        e.duration("MERGE_PAUSE_SPLIT", 15*time.Second),
		MergeInclusiveBoundary: e.boolean("MERGE_INCLUSIVE_BOUNDARY", true),
		UnknownSpeakerLabel:    e.str("UNKNOWN_SPEAKER_LABEL", merge.DefaultUnknownSpeaker),

		Workers:   e.integer("WORKERS", 4),
		QueueSize: e.integer("QUEUE_SIZE", 100),

		WebhookSecret: e.str("WEBHOOK_SECRET", ""),
	}
	if len(e.errs) > 0 {
		return nil, fmt.Errorf("invalid settings: %w", errors.Join(e.errs...))
	}

	if err := validator.New().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fmt.Errorf("invalid settings: %s", strings.Join(utils.FormatValidationErrors(verrs), "; "))
		}
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// MergeOptions converts the merge thresholds to the engine's milliseconds.
func (s *Settings) MergeOptions() merge.Options {
	return merge.Options{
		GapBridgeMs:    s.MergeGapBridge.Milliseconds(),
		PauseSplitMs:   s.MergePauseSplit.Milliseconds(),
		Inclusive:      s.MergeInclusiveBoundary,
		UnknownSpeaker: s.UnknownSpeakerLabel,
	}
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *env) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) boolean(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}
