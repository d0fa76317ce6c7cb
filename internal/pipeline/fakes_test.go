package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"speakerscribe/internal/db"
	"speakerscribe/internal/dispatch"
	"speakerscribe/internal/merge"
	"speakerscribe/models"
)

const testBucket = "audio"

type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]models.Document
	updates int
	findErr error
	nilDoc  bool
}

func newFakeStore(docs ...models.Document) *fakeStore {
	s := &fakeStore{docs: make(map[string]models.Document)}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *fakeStore) Find(_ context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.nilDoc {
		return nil, nil
	}
	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", db.ErrRecordNotFound, id)
	}
	return &d, nil
}

func (s *fakeStore) Update(_ context.Context, id string, patch db.DocumentPatch, guard db.Guard) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, db.ErrRecordNotFound
	}
	if guard.Type != "" && d.TranscriptionType != guard.Type {
		return nil, db.ErrGuardRejected
	}
	if len(guard.StatusIn) > 0 {
		matched := false
		for _, st := range guard.StatusIn {
			matched = matched || st == d.TranscriptionStatus
		}
		if !matched {
			return nil, db.ErrGuardRejected
		}
	}
	if conflicts(d.DiarizationResultKey, patch.DiarizationResultKey) ||
		conflicts(d.TranscriptionResultKey, patch.TranscriptionResultKey) ||
		conflicts(d.MergedResultKey, patch.MergedResultKey) {
		return nil, db.ErrGuardRejected
	}
	if patch.TranscriptionStatus != nil {
		d.TranscriptionStatus = *patch.TranscriptionStatus
	}
	if patch.DiarizationResultKey != nil {
		d.DiarizationResultKey = strPtr(*patch.DiarizationResultKey)
	}
	if patch.TranscriptionResultKey != nil {
		d.TranscriptionResultKey = strPtr(*patch.TranscriptionResultKey)
	}
	if patch.MergedResultKey != nil {
		d.MergedResultKey = strPtr(*patch.MergedResultKey)
	}
	s.docs[id] = d
	s.updates++
	return &d, nil
}

// conflicts reports whether a write-once key would be overwritten.
func conflicts(stored, patch *string) bool {
	return stored != nil && patch != nil && *stored != *patch
}

func (s *fakeStore) Upsert(_ context.Context, doc models.Document) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return &doc, nil
}

func (s *fakeStore) get(t *testing.T, id string) models.Document {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		t.Fatalf("document %s missing", id)
	}
	return d
}

type putCall struct {
	key         string
	body        string
	contentType string
	public      bool
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []putCall
	gets    int
	getErr  error
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (o *fakeObjects) Get(ctx context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gets++
	if o.getErr != nil {
		return nil, o.getErr
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, fmt.Errorf("get %s without deadline", key)
	}
	b, ok := o.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return b, nil
}

func (o *fakeObjects) Put(_ context.Context, key string, body []byte, contentType string, isPublic bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.putErr != nil {
		return o.putErr
	}
	o.objects[key] = body
	o.puts = append(o.puts, putCall{key: key, body: string(body), contentType: contentType, public: isPublic})
	return nil
}

type startCall struct {
	jobName  string
	inputKey string
	params   dispatch.Params
	deadline bool
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []startCall
	err   error
}

func (d *fakeDispatcher) Start(ctx context.Context, jobName, inputKey string, params dispatch.Params) (dispatch.JobHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, hasDeadline := ctx.Deadline()
	d.calls = append(d.calls, startCall{jobName: jobName, inputKey: inputKey, params: params, deadline: hasDeadline})
	if d.err != nil {
		return dispatch.JobHandle{}, d.err
	}
	return dispatch.JobHandle{Name: jobName, ID: "job-" + params.DocumentID}, nil
}

type harness struct {
	store      *fakeStore
	objects    *fakeObjects
	dispatcher *fakeDispatcher
	processor  *Processor
	logs       *test.Hook
}

func newHarness(docs ...models.Document) *harness {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h := &harness{
		store:      newFakeStore(docs...),
		objects:    newFakeObjects(),
		dispatcher: &fakeDispatcher{},
		logs:       hook,
	}
	engine := merge.New(merge.Options{GapBridgeMs: 25000, PauseSplitMs: 15000, Inclusive: true})
	h.processor = NewProcessor(h.store, h.objects, h.dispatcher, engine, Config{
		Bucket:          testBucket,
		DispatchTimeout: time.Second,
		StorageTimeout:  time.Second,
	}, logger)
	return h
}

func automaticDoc(id string) models.Document {
	return models.Document{
		ID:                  id,
		TranscriptionType:   models.TranscriptionTypeAutomatic,
		TranscriptionStatus: models.TranscriptionStatusPending,
		Language:            "da-DK",
	}
}

func created(key string) models.Notification {
	return models.Notification{Bucket: testBucket, ObjectKey: key, EventType: models.EventTypeObjectCreatedPut}
}

func strPtr(s string) *string {
	return &s
}

const (
	scenarioDiarization   = `[{"speaker":"A","start":0,"end":5},{"speaker":"B","start":5,"end":9}]`
	scenarioTranscription = `{"segments":[
		{"text":" hi there","start":0,"end":0.9,"words":[{"word":" hi","start":0,"end":0.4},{"word":" there","start":0.5,"end":0.9}]},
		{"text":" bye","start":5.2,"end":5.6,"words":[{"word":" bye","start":5.2,"end":5.6}]}
	]}`
)

// seedResults stores both result artifacts for id and returns their keys.
func (h *harness) seedResults(id, transcription string) (diarizationKey, transcriptionKey string) {
	diarizationKey = "speaker-diarization/" + id + ".mp3.out"
	transcriptionKey = "speech-to-text/" + id + ".mp3.out"
	h.objects.objects[diarizationKey] = []byte(scenarioDiarization)
	h.objects.objects[transcriptionKey] = []byte(transcription)
	return diarizationKey, transcriptionKey
}
