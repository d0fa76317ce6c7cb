package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus/hooks/test"

	"speakerscribe/internal/db"
	"speakerscribe/internal/jobs"
	"speakerscribe/internal/pipeline"
	"speakerscribe/internal/worker"
	"speakerscribe/models"
)

type stubProcessor struct {
	mu      sync.Mutex
	batches [][]pipeline.Record
}

func (s *stubProcessor) ProcessRecords(_ context.Context, records []pipeline.Record) []pipeline.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, records)
	out := make([]pipeline.Outcome, len(records))
	for i, r := range records {
		out[i] = pipeline.Outcome{Notification: r.Notification, DocumentID: "doc-1", Stage: pipeline.StageDispatched}
	}
	return out
}

type stubQueue struct {
	jobs []worker.Job
	err  error
}

func (q *stubQueue) Submit(job worker.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *stubQueue) QueueLen() int { return len(q.jobs) }

type memoryStore struct {
	docs map[string]models.Document
}

func (m *memoryStore) Find(_ context.Context, id string) (*models.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, db.ErrRecordNotFound
	}
	return &d, nil
}

func (m *memoryStore) Update(context.Context, string, db.DocumentPatch, db.Guard) (*models.Document, error) {
	return nil, db.ErrGuardRejected
}

func (m *memoryStore) Upsert(_ context.Context, doc models.Document) (*models.Document, error) {
	if existing, ok := m.docs[doc.ID]; ok && doc.TranscriptionStatus == "" {
		doc.TranscriptionStatus = existing.TranscriptionStatus
	}
	if doc.TranscriptionStatus == "" {
		doc.TranscriptionStatus = models.TranscriptionStatusPending
	}
	m.docs[doc.ID] = doc
	return &doc, nil
}

type testApp struct {
	app       *fiber.App
	processor *stubProcessor
	queue     *stubQueue
	batches   *jobs.Tracker
	store     *memoryStore
}

func newTestApp(secret string) *testApp {
	logger, _ := test.NewNullLogger()
	ta := &testApp{
		app:       fiber.New(),
		processor: &stubProcessor{},
		queue:     &stubQueue{},
		batches:   jobs.NewTracker(10),
		store:     &memoryStore{docs: map[string]models.Document{}},
	}
	h := NewApplicationHandler(ta.processor, ta.queue, ta.batches, ta.store, logger)
	SetupRoutes(ta.app, h, secret)
	return ta
}

func (ta *testApp) do(t *testing.T, method, path, body string, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ta.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("%s %s: decoding %s: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, decoded
}

const s3Event = `{"Records":[{"eventName":"ObjectCreated:Put","s3":{"bucket":{"name":"audio"},"object":{"key":"raw-audio/doc-1.mp3"}}}]}`

func TestReceiveNotificationsQueuesBatch(t *testing.T) {
	ta := newTestApp("")

	code, body := ta.do(t, http.MethodPost, "/api/v1/notifications", s3Event, nil)
	if code != http.StatusAccepted {
		t.Fatalf("status = %d body = %v", code, body)
	}
	data := body["data"].(map[string]interface{})
	batchID := data["batch_id"].(string)
	if data["records"].(float64) != 1 || len(ta.queue.jobs) != 1 || ta.queue.jobs[0].ID() != batchID {
		t.Fatalf("data = %v jobs = %d", data, len(ta.queue.jobs))
	}

	code, body = ta.do(t, http.MethodGet, "/api/v1/batches/"+batchID, "", nil)
	if code != http.StatusOK || body["data"].(map[string]interface{})["status"] != string(jobs.BatchStatusPending) {
		t.Fatalf("batch before run: %d %v", code, body)
	}

	if err := ta.queue.jobs[0].Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	code, body = ta.do(t, http.MethodGet, "/api/v1/batches/"+batchID, "", nil)
	state := body["data"].(map[string]interface{})
	if code != http.StatusOK || state["status"] != string(jobs.BatchStatusCompleted) {
		t.Fatalf("batch after run: %d %v", code, body)
	}
	outcome := state["outcomes"].([]interface{})[0].(map[string]interface{})
	if outcome["stage"] != string(pipeline.StageDispatched) || outcome["object_key"] != "raw-audio/doc-1.mp3" {
		t.Fatalf("outcome = %v", outcome)
	}
}

func TestReceiveNotificationsSync(t *testing.T) {
	ta := newTestApp("")

	code, body := ta.do(t, http.MethodPost, "/api/v1/notifications?sync=true", s3Event, nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d body = %v", code, body)
	}
	outcomes := body["data"].([]interface{})
	if len(outcomes) != 1 || len(ta.queue.jobs) != 0 || len(ta.processor.batches) != 1 {
		t.Fatalf("outcomes = %v", outcomes)
	}
}

func TestReceiveNotificationsErrors(t *testing.T) {
	ta := newTestApp("s3cret")
	secret := map[string]string{"X-Webhook-Secret": "s3cret"}

	if code, _ := ta.do(t, http.MethodPost, "/api/v1/notifications", s3Event, nil); code != http.StatusUnauthorized {
		t.Fatalf("missing secret: %d", code)
	}
	if code, _ := ta.do(t, http.MethodPost, "/api/v1/notifications", `{"hello":1}`, secret); code != http.StatusBadRequest {
		t.Fatalf("unknown envelope: %d", code)
	}

	ta.queue.err = worker.ErrQueueFull
	if code, _ := ta.do(t, http.MethodPost, "/api/v1/notifications", s3Event, secret); code != http.StatusServiceUnavailable {
		t.Fatalf("queue full: %d", code)
	}
}

func TestGetBatchErrors(t *testing.T) {
	ta := newTestApp("")
	if code, _ := ta.do(t, http.MethodGet, "/api/v1/batches/not-a-uuid", "", nil); code != http.StatusBadRequest {
		t.Fatalf("invalid id: %d", code)
	}
	if code, _ := ta.do(t, http.MethodGet, "/api/v1/batches/7f1b5a52-3a3c-4a8e-9f57-1f0c2e7d0a11", "", nil); code != http.StatusNotFound {
		t.Fatalf("unknown id: %d", code)
	}
}

func TestRegisterAndGetDocument(t *testing.T) {
	ta := newTestApp("")

	code, body := ta.do(t, http.MethodPut, "/api/v1/documents/doc-1", `{"transcription_type":"AUTOMATIC","language":"da-DK"}`, nil)
	if code != http.StatusOK {
		t.Fatalf("register: %d %v", code, body)
	}
	ta.store.docs["doc-1"] = func() models.Document {
		d := ta.store.docs["doc-1"]
		d.TranscriptionStatus = models.TranscriptionStatusProcessing
		return d
	}()

	// Re-registering keeps the pipeline's status.
	code, body = ta.do(t, http.MethodPut, "/api/v1/documents/doc-1", `{"transcription_type":"MANUAL","language":"da-DK"}`, nil)
	doc := body["data"].(map[string]interface{})
	if code != http.StatusOK || doc["transcription_status"] != "PROCESSING" || doc["transcription_type"] != "MANUAL" {
		t.Fatalf("re-register: %d %v", code, body)
	}

	code, body = ta.do(t, http.MethodGet, "/api/v1/documents/doc-1", "", nil)
	if code != http.StatusOK || body["data"].(map[string]interface{})["id"] != "doc-1" {
		t.Fatalf("get: %d %v", code, body)
	}
	if code, _ := ta.do(t, http.MethodGet, "/api/v1/documents/missing", "", nil); code != http.StatusNotFound {
		t.Fatalf("missing: %d", code)
	}
}

func TestRegisterDocumentValidation(t *testing.T) {
	ta := newTestApp("")
	cases := map[string]struct{ path, body string }{
		"dotted id":    {"/api/v1/documents/doc.1", `{"transcription_type":"AUTOMATIC","language":"da-DK"}`},
		"bad type":     {"/api/v1/documents/doc-1", `{"transcription_type":"ROBOT","language":"da-DK"}`},
		"no language":  {"/api/v1/documents/doc-1", `{"transcription_type":"AUTOMATIC"}`},
		"invalid json": {"/api/v1/documents/doc-1", `{`},
	}
	for name, tc := range cases {
		if code, body := ta.do(t, http.MethodPut, tc.path, tc.body, nil); code != http.StatusBadRequest {
			t.Errorf("%s: %d %v", name, code, body)
		}
	}
	if len(ta.store.docs) != 0 {
		t.Fatalf("invalid registrations stored: %v", ta.store.docs)
	}
}

func TestHealth(t *testing.T) {
	ta := newTestApp("")
	code, body := ta.do(t, http.MethodGet, "/health", "", nil)
	if code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", code, body)
	}
}
