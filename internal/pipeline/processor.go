// Package pipeline turns storage notifications into document state changes.
//
// Each notification is one independent attempt: it is filtered, routed by
// its object key, and then either starts a transform job for new raw audio
// or records a diarization/transcription result on the document. The
// document row is the join barrier; the attempt that records the second
// result also merges both into the generated transcript.
package pipeline

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"lukechampine.com/blake3"

	"speakerscribe/internal/db"
	"speakerscribe/internal/dispatch"
	"speakerscribe/internal/keys"
	"speakerscribe/internal/merge"
	"speakerscribe/models"
)

// TranscriptContentType is the content type of generated transcripts.
const TranscriptContentType = "text/html"

// Stage is where an attempt ended.
type Stage string

const (
	StageSkipped      Stage = "SKIPPED"
	StageDispatched   Stage = "DISPATCHED"
	StageStateUpdated Stage = "STATE_UPDATED"
	StageComplete     Stage = "COMPLETE"
	StageFailed       Stage = "FAILED"
)

// Outcome reports what processing a single notification did.
type Outcome struct {
	Notification models.Notification
	DocumentID   string
	Stage        Stage
	Reason       string
	// Err is set for StageFailed and is always a *Error.
	Err error
	// Job is set for StageDispatched.
	Job *dispatch.JobHandle
	// MergedKey and ContentHash are set for StageComplete.
	MergedKey   string
	ContentHash string
}

type outcomeJSON struct {
	Bucket      string              `json:"bucket"`
	ObjectKey   string              `json:"object_key"`
	EventType   string              `json:"event_type"`
	DocumentID  string              `json:"document_id,omitempty"`
	Stage       Stage               `json:"stage"`
	Reason      string              `json:"reason,omitempty"`
	Error       string              `json:"error,omitempty"`
	Job         *dispatch.JobHandle `json:"job,omitempty"`
	MergedKey   string              `json:"merged_key,omitempty"`
	ContentHash string              `json:"content_hash,omitempty"`
}

// MarshalJSON flattens the outcome for API responses.
func (o Outcome) MarshalJSON() ([]byte, error) {
	v := outcomeJSON{
		Bucket:      o.Notification.Bucket,
		ObjectKey:   o.Notification.ObjectKey,
		EventType:   o.Notification.EventType,
		DocumentID:  o.DocumentID,
		Stage:       o.Stage,
		Reason:      o.Reason,
		Job:         o.Job,
		MergedKey:   o.MergedKey,
		ContentHash: o.ContentHash,
	}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return json.Marshal(v)
}

// ObjectStore reads result artifacts and writes the merged transcript.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, contentType string, isPublic bool) error
}

// Config holds the processor settings.
type Config struct {
	// Bucket is the only bucket whose notifications are acted on.
	Bucket string
	// Model is the speech-to-text model size passed to transform jobs.
	Model string
	// DispatchTimeout bounds a single dispatcher call; zero means no bound.
	DispatchTimeout time.Duration
	// StorageTimeout bounds each artifact fetch and the transcript upload.
	StorageTimeout time.Duration
}

// Processor runs notifications through the completion pipeline. It holds no
// per-document state and may be used from many goroutines at once.
type Processor struct {
	docs       db.DocumentStore
	objects    ObjectStore
	dispatcher dispatch.Dispatcher
	engine     *merge.Engine
	cfg        Config
	logger     *logrus.Logger
}

// NewProcessor wires a processor to its collaborators.
func NewProcessor(docs db.DocumentStore, objects ObjectStore, dispatcher dispatch.Dispatcher, engine *merge.Engine, cfg Config, logger *logrus.Logger) *Processor {
	if cfg.Model == "" {
		cfg.Model = dispatch.DefaultModel
	}
	return &Processor{
		docs:       docs,
		objects:    objects,
		dispatcher: dispatcher,
		engine:     engine,
		cfg:        cfg,
		logger:     logger,
	}
}

// resultGuard admits result writes only while the pipeline still owns the
// document and the merge has not completed.
var resultGuard = db.Guard{
	StatusIn: []models.TranscriptionStatus{models.TranscriptionStatusPending, models.TranscriptionStatusProcessing},
	Type:     models.TranscriptionTypeAutomatic,
}

var doneGuard = db.Guard{
	StatusIn: []models.TranscriptionStatus{models.TranscriptionStatusProcessing},
	Type:     models.TranscriptionTypeAutomatic,
}

// ProcessBatch processes notifications in order. A failed or skipped record
// never stops the ones after it.
func (p *Processor) ProcessBatch(ctx context.Context, notifications []models.Notification) []Outcome {
	outcomes := make([]Outcome, 0, len(notifications))
	for _, n := range notifications {
		outcomes = append(outcomes, p.Process(ctx, n))
	}
	return outcomes
}

// Process runs one notification through the pipeline and logs the outcome.
func (p *Processor) Process(ctx context.Context, n models.Notification) Outcome {
	out := p.process(ctx, n)
	p.logOutcome(out)
	return out
}

func (p *Processor) process(ctx context.Context, n models.Notification) Outcome {
	out := Outcome{Notification: n}

	if !n.IsObjectCreated() {
		return out.skip("not an object creation event")
	}
	if n.Bucket != p.cfg.Bucket {
		return out.skip("notification is for another bucket")
	}

	route, err := keys.Classify(n.ObjectKey)
	if err != nil {
		return out.skip("object key is not a pipeline artifact")
	}
	out.DocumentID = route.DocumentID

	doc, err := p.docs.Find(ctx, route.DocumentID)
	if err != nil {
		return out.fail(dependencyError("find document", route.DocumentID, err))
	}
	if doc == nil {
		return out.fail(fatalError("find document returned no document", route.DocumentID))
	}
	if doc.IsManual() {
		return out.skip("document is transcribed manually")
	}
	if doc.IsDone() {
		return out.skip("document transcription is already done")
	}

	var patch db.DocumentPatch
	var recorded *string
	switch route.Class {
	case keys.RawAudio:
		return p.dispatch(ctx, out, doc, n.ObjectKey)
	case keys.DiarizationResult:
		patch.DiarizationResultKey = &n.ObjectKey
		recorded = doc.DiarizationResultKey
	case keys.TranscriptionResult:
		patch.TranscriptionResultKey = &n.ObjectKey
		recorded = doc.TranscriptionResultKey
	case keys.GeneratedOutput:
		return out.skip("generated output is never pipeline input")
	default:
		return out.skip("unhandled artifact class " + route.Class.String())
	}
	if recorded != nil && *recorded != n.ObjectKey {
		return out.skip("another " + route.Class.String() + " result is already recorded")
	}
	patch.TranscriptionStatus = db.StatusPtr(models.TranscriptionStatusProcessing)

	// The store only applies the write while the document is still in the
	// pipeline and the key column is unset or already holds this key.
	updated, err := p.docs.Update(ctx, doc.ID, patch, resultGuard)
	switch {
	case errors.Is(err, db.ErrGuardRejected):
		return out.skip("document left the pipeline or recorded another result concurrently")
	case err != nil:
		return out.fail(dependencyError("record "+route.Class.String(), doc.ID, err))
	case updated == nil:
		return out.fail(fatalError("update returned no document", doc.ID))
	}
	out.Stage = StageStateUpdated

	if !updated.ReadyToMerge() {
		out.Reason = "waiting for the other result"
		return out
	}
	return p.merge(ctx, out, updated)
}

func (p *Processor) dispatch(ctx context.Context, out Outcome, doc *models.Document, inputKey string) Outcome {
	ctx, cancel := withTimeout(ctx, p.cfg.DispatchTimeout)
	defer cancel()

	handle, err := p.dispatcher.Start(ctx, dispatch.JobName(doc.ID), inputKey, dispatch.Params{
		DocumentID: doc.ID,
		Model:      p.cfg.Model,
		Language:   doc.Language,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrUnsupportedLanguage) {
			return out.fail(validationError("start transform job", doc.ID, err))
		}
		return out.fail(dependencyError("start transform job", doc.ID, err))
	}
	out.Stage = StageDispatched
	out.Job = &handle
	return out
}

func (p *Processor) merge(ctx context.Context, out Outcome, doc *models.Document) Outcome {
	diarization, err := p.fetch(ctx, *doc.DiarizationResultKey)
	if err != nil {
		return out.fail(dependencyError("fetch diarization result", doc.ID, err))
	}
	transcription, err := p.fetch(ctx, *doc.TranscriptionResultKey)
	if err != nil {
		return out.fail(dependencyError("fetch transcription result", doc.ID, err))
	}

	segments, err := merge.DecodeDiarization(diarization)
	if err != nil {
		return out.fail(validationError("decode diarization result", doc.ID, err))
	}
	tokens, err := merge.DecodeTranscription(transcription)
	if err != nil {
		return out.fail(validationError("decode transcription result", doc.ID, err))
	}
	blocks, err := p.engine.Merge(segments, tokens)
	if err != nil {
		return out.fail(validationError("merge results", doc.ID, err))
	}
	html, err := merge.RenderHTML(blocks)
	if err != nil {
		return out.fail(validationError("render transcript", doc.ID, err))
	}

	key := keys.GeneratedTranscriptionKey(doc.ID)
	putCtx, cancel := withTimeout(ctx, p.cfg.StorageTimeout)
	err = p.objects.Put(putCtx, key, []byte(html), TranscriptContentType, true)
	cancel()
	if err != nil {
		return out.fail(dependencyError("write transcript", doc.ID, err))
	}
	sum := blake3.Sum256([]byte(html))
	out.MergedKey = key
	out.ContentHash = hex.EncodeToString(sum[:])

	done, err := p.docs.Update(ctx, doc.ID, db.DocumentPatch{
		TranscriptionStatus: db.StatusPtr(models.TranscriptionStatusDone),
		MergedResultKey:     &key,
	}, doneGuard)
	switch {
	case errors.Is(err, db.ErrGuardRejected):
		// A concurrent delivery finished first; it wrote identical bytes.
		return out.skip("merge already completed")
	case err != nil:
		return out.fail(dependencyError("mark document done", doc.ID, err))
	case done == nil:
		return out.fail(fatalError("update returned no document", doc.ID))
	}
	out.Stage = StageComplete
	out.Reason = ""
	return out
}

func (p *Processor) fetch(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, p.cfg.StorageTimeout)
	defer cancel()
	return p.objects.Get(ctx, key)
}

func (p *Processor) logOutcome(out Outcome) {
	entry := p.logger.WithFields(logrus.Fields{
		"bucket":      out.Notification.Bucket,
		"object_key":  out.Notification.ObjectKey,
		"event_type":  out.Notification.EventType,
		"document_id": out.DocumentID,
		"stage":       out.Stage,
	})
	if out.Reason != "" {
		entry = entry.WithField("reason", out.Reason)
	}

	switch out.Stage {
	case StageFailed:
		entry = entry.WithError(out.Err)
		if errors.Is(out.Err, ErrFatal) {
			entry.Error("Internal invariant violated while processing notification")
			return
		}
		entry.Error("Failed to process notification")
	case StageSkipped:
		entry.Debug("Skipped notification")
	case StageDispatched:
		entry.WithFields(logrus.Fields{"job_name": out.Job.Name, "job_id": out.Job.ID}).Info("Started transform job")
	case StageComplete:
		entry.WithFields(logrus.Fields{"merged_key": out.MergedKey, "content_hash": out.ContentHash}).Info("Merged transcript")
	default:
		entry.Info("Recorded analysis result")
	}
}

func (o Outcome) skip(reason string) Outcome {
	o.Stage = StageSkipped
	o.Reason = reason
	return o
}

func (o Outcome) fail(err *Error) Outcome {
	o.Stage = StageFailed
	o.Err = err
	return o
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
