// Package dispatch starts batch transform jobs that turn raw audio into
// speech-to-text and speaker-diarization artifacts.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DefaultModel is the speech-to-text model size used when none is configured.
const DefaultModel = "medium"

// maxJobNameLength is the transform service limit on job names.
const maxJobNameLength = 63

// ErrUnsupportedLanguage is returned for document languages no model covers.
var ErrUnsupportedLanguage = errors.New("unsupported transcription language")

// Params are the model settings passed to a transform job.
type Params struct {
	DocumentID string
	Model      string
	Language   string
}

// JobHandle identifies a started job.
type JobHandle struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Dispatcher starts transform jobs.
type Dispatcher interface {
	Start(ctx context.Context, jobName, inputKey string, params Params) (JobHandle, error)
}

var invalidJobNameChars = regexp.MustCompile(`[^A-Za-z0-9-]+`)

// JobName returns a unique job name for a document. Names only contain
// letters, digits and dashes and are at most 63 characters long.
func JobName(documentID string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	base := strings.Trim(invalidJobNameChars.ReplaceAllString(documentID, "-"), "-")
	if base == "" {
		base = "document"
	}
	if limit := maxJobNameLength - len("transcribe--") - len(suffix); len(base) > limit {
		base = strings.TrimRight(base[:limit], "-")
	}
	return fmt.Sprintf("transcribe-%s-%s", base, suffix)
}

// languages maps the document language codes the application offers to the
// language names the speech-to-text model expects.
var languages = map[string]string{
	"da-DK": "danish",
	"de-DE": "german",
	"en-GB": "english",
	"en-US": "english",
	"es-ES": "spanish",
	"fi-FI": "finnish",
	"fr-FR": "french",
	"it-IT": "italian",
	"nb-NO": "norwegian",
	"nl-NL": "dutch",
	"pl-PL": "polish",
	"pt-PT": "portuguese",
	"sv-SE": "swedish",
}

// ResolveLanguage maps a document language code to a model language name.
// Bare codes ("da") and case differences ("da-dk") are accepted.
func ResolveLanguage(code string) (string, error) {
	code = strings.TrimSpace(code)
	if name, ok := languages[code]; ok {
		return name, nil
	}
	for k, name := range languages {
		if strings.EqualFold(k, code) {
			return name, nil
		}
	}
	for k, name := range languages {
		if prefix, _, _ := strings.Cut(k, "-"); code != "" && strings.EqualFold(prefix, code) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
}
