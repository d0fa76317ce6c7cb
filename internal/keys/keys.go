// Package keys maps storage object keys in the audio bucket to the artifact
// they hold and the document they belong to.
//
// Keys are laid out as {prefix}/{documentId}.{ext}. Batch transform outputs
// append their own suffix to the input name (raw-audio/abc.mp3 produces
// speech-to-text/abc.mp3.out), so the document id is everything before the
// first dot of the file name.
package keys

import (
	"errors"
	"fmt"
	"strings"
)

// ArtifactClass identifies which pipeline stage produced an object.
type ArtifactClass int

const (
	RawAudio ArtifactClass = iota + 1
	DiarizationResult
	TranscriptionResult
	GeneratedOutput
)

// Storage prefixes. These are a wire contract with the uploader and the
// batch transform jobs; do not rename.
const (
	RawAudioPrefix            = "raw-audio"
	DiarizationResultPrefix   = "speaker-diarization"
	TranscriptionResultPrefix = "speech-to-text"
	GeneratedOutputPrefix     = "generated-transcription"
)

// ErrUnroutable is returned for keys that do not belong to the pipeline.
var ErrUnroutable = errors.New("object key is not routable")

var prefixes = map[string]ArtifactClass{
	RawAudioPrefix:            RawAudio,
	DiarizationResultPrefix:   DiarizationResult,
	TranscriptionResultPrefix: TranscriptionResult,
	GeneratedOutputPrefix:     GeneratedOutput,
}

// Prefix returns the storage prefix of the class.
func (c ArtifactClass) Prefix() string {
	switch c {
	case RawAudio:
		return RawAudioPrefix
	case DiarizationResult:
		return DiarizationResultPrefix
	case TranscriptionResult:
		return TranscriptionResultPrefix
	case GeneratedOutput:
		return GeneratedOutputPrefix
	}
	return ""
}

func (c ArtifactClass) String() string {
	if p := c.Prefix(); p != "" {
		return p
	}
	return fmt.Sprintf("ArtifactClass(%d)", int(c))
}

// Route is the result of classifying an object key.
type Route struct {
	Class      ArtifactClass
	DocumentID string
}

// Classify splits an object key into its artifact class and document id.
func Classify(objectKey string) (Route, error) {
	prefix, name, ok := strings.Cut(objectKey, "/")
	if !ok {
		return Route{}, fmt.Errorf("%w: %q has no prefix", ErrUnroutable, objectKey)
	}
	class, known := prefixes[prefix]
	if !known {
		return Route{}, fmt.Errorf("%w: unknown prefix %q", ErrUnroutable, prefix)
	}
	if strings.Contains(name, "/") {
		return Route{}, fmt.Errorf("%w: %q is nested below %s", ErrUnroutable, objectKey, prefix)
	}
	id, _, _ := strings.Cut(name, ".")
	if strings.TrimSpace(id) == "" {
		return Route{}, fmt.Errorf("%w: %q has no document id", ErrUnroutable, objectKey)
	}
	if strings.TrimSpace(id) != id {
		return Route{}, fmt.Errorf("%w: document id in %q has surrounding whitespace", ErrUnroutable, objectKey)
	}
	return Route{Class: class, DocumentID: id}, nil
}

// Key builds the object key for a document artifact. ext is used without a
// leading dot.
func Key(class ArtifactClass, documentID, ext string) string {
	return fmt.Sprintf("%s/%s.%s", class.Prefix(), documentID, strings.TrimPrefix(ext, "."))
}

// GeneratedTranscriptionKey is where the merged HTML transcript is written.
func GeneratedTranscriptionKey(documentID string) string {
	return Key(GeneratedOutput, documentID, "html")
}
