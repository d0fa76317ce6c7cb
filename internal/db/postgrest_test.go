package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	postgrest "github.com/supabase-community/postgrest-go"

	"speakerscribe/models"
)

// fakePostgrest serves the handful of PostgREST filters the store uses
// against an in-memory documents table.
type fakePostgrest struct {
	mu      sync.Mutex
	rows    map[string]map[string]interface{}
	patches []string
}

func (f *fakePostgrest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	var matched []map[string]interface{}
	for _, row := range f.rows {
		if matchesID(row, q.Get("id")) && matchesFilter(row, "transcription_status", q.Get("transcription_status")) &&
			matchesFilter(row, "transcription_type", q.Get("transcription_type")) && matchesUnsetOrEqual(row, q.Get("or")) {
			matched = append(matched, row)
		}
	}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPatch:
		f.patches = append(f.patches, r.URL.RawQuery)
		var updates map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, row := range matched {
			for k, v := range updates {
				row[k] = v
			}
		}
	case http.MethodPost:
		var row map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id := row["id"].(string)
		existing, ok := f.rows[id]
		if !ok {
			existing = map[string]interface{}{"transcription_status": "PENDING"}
			f.rows[id] = existing
		}
		for k, v := range row {
			existing[k] = v
		}
		matched = []map[string]interface{}{existing}
	}

	if len(matched) == 0 {
		w.Header().Set("Content-Range", "*/0")
	} else {
		w.Header().Set("Content-Range", fmt.Sprintf("0-%d/%d", len(matched)-1, len(matched)))
	}
	w.Header().Set("Content-Type", "application/json")
	if matched == nil {
		matched = []map[string]interface{}{}
	}
	_ = json.NewEncoder(w).Encode(matched)
}

func matchesID(row map[string]interface{}, filter string) bool {
	return filter == "" || filter == "eq."+row["id"].(string)
}

func matchesFilter(row map[string]interface{}, col, filter string) bool {
	if filter == "" {
		return true
	}
	v, _ := row[col].(string)
	if strings.HasPrefix(filter, "eq.") {
		return v == strings.TrimPrefix(filter, "eq.")
	}
	list := strings.TrimSuffix(strings.TrimPrefix(filter, "in.("), ")")
	for _, s := range strings.Split(list, ",") {
		if strings.Trim(s, `"`) == v {
			return true
		}
	}
	return false
}

// matchesUnsetOrEqual evaluates or=(col.is.null,col.eq."value").
func matchesUnsetOrEqual(row map[string]interface{}, filter string) bool {
	if filter == "" {
		return true
	}
	parts := strings.SplitN(strings.TrimSuffix(strings.TrimPrefix(filter, "("), ")"), ",", 2)
	col := strings.TrimSuffix(parts[0], ".is.null")
	want := strings.Trim(strings.TrimPrefix(parts[1], col+".eq."), `"`)
	v, ok := row[col].(string)
	return !ok || v == want
}

func newPostgrestStore(t *testing.T) (*PostgrestStore, *fakePostgrest) {
	t.Helper()
	fake := &fakePostgrest{rows: map[string]map[string]interface{}{
		"doc-1": {"id": "doc-1", "transcription_type": "AUTOMATIC", "transcription_status": "PENDING", "language": "da-DK"},
		"doc-2": {"id": "doc-2", "transcription_type": "MANUAL", "transcription_status": "PENDING", "language": "en-US"},
	}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	logger, _ := test.NewNullLogger()
	client := postgrest.NewClient(server.URL, "", map[string]string{"apikey": "test"})
	return NewPostgrestStore(client, "", logger), fake
}

var pipelineGuard = Guard{
	StatusIn: []models.TranscriptionStatus{models.TranscriptionStatusPending, models.TranscriptionStatusProcessing},
	Type:     models.TranscriptionTypeAutomatic,
}

func TestPostgrestStoreFind(t *testing.T) {
	store, _ := newPostgrestStore(t)

	doc, err := store.Find(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if doc.ID != "doc-1" || doc.TranscriptionType != models.TranscriptionTypeAutomatic || doc.Language != "da-DK" {
		t.Fatalf("doc = %+v", doc)
	}
	if _, err := store.Find(context.Background(), "missing"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("missing: err = %v", err)
	}
}

func TestPostgrestStoreGuardedUpdate(t *testing.T) {
	store, fake := newPostgrestStore(t)
	ctx := context.Background()
	key := "speaker-diarization/doc-1.mp3.out"

	doc, err := store.Update(ctx, "doc-1", DocumentPatch{
		TranscriptionStatus:  StatusPtr(models.TranscriptionStatusProcessing),
		DiarizationResultKey: &key,
	}, pipelineGuard)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if doc.TranscriptionStatus != models.TranscriptionStatusProcessing || doc.DiarizationResultKey == nil || *doc.DiarizationResultKey != key {
		t.Fatalf("doc = %+v", doc)
	}
	if len(fake.patches) != 1 || !strings.Contains(fake.patches[0], "transcription_status=in.") || !strings.Contains(fake.patches[0], "transcription_type=eq.AUTOMATIC") {
		t.Fatalf("patch filters = %v", fake.patches)
	}

	if _, err := store.Update(ctx, "doc-2", DocumentPatch{DiarizationResultKey: &key}, pipelineGuard); !errors.Is(err, ErrGuardRejected) {
		t.Fatalf("manual document: err = %v", err)
	}
	if _, err := store.Update(ctx, "missing", DocumentPatch{DiarizationResultKey: &key}, pipelineGuard); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("missing document: err = %v", err)
	}
	if !strings.Contains(fake.patches[0], "or=") {
		t.Fatalf("patch missing write-once key filter: %v", fake.patches[0])
	}

	// Redelivery of the recorded key still matches; a different key does not.
	if _, err := store.Update(ctx, "doc-1", DocumentPatch{DiarizationResultKey: &key}, pipelineGuard); err != nil {
		t.Fatalf("same key: %v", err)
	}
	rerun := "speaker-diarization/doc-1.rerun.out"
	if _, err := store.Update(ctx, "doc-1", DocumentPatch{DiarizationResultKey: &rerun}, pipelineGuard); !errors.Is(err, ErrGuardRejected) {
		t.Fatalf("different key: err = %v", err)
	}
	if got := fake.rows["doc-1"]["diarization_result_key"]; got != key {
		t.Fatalf("diarization_result_key = %v, want %s", got, key)
	}

	if _, err := store.Update(ctx, "doc-1", DocumentPatch{}, pipelineGuard); err == nil {
		t.Fatal("empty patch accepted")
	}
}

func TestUnsetOrEqual(t *testing.T) {
	one := "a/b.json"
	two := `x"y`
	cases := map[string]struct {
		patch DocumentPatch
		want  string
	}{
		"no keys":  {DocumentPatch{TranscriptionStatus: StatusPtr(models.TranscriptionStatusDone)}, ""},
		"one key":  {DocumentPatch{DiarizationResultKey: &one}, `diarization_result_key.is.null,diarization_result_key.eq."a/b.json"`},
		"quoting":  {DocumentPatch{MergedResultKey: &two}, `merged_result_key.is.null,merged_result_key.eq."x\"y"`},
		"two keys": {DocumentPatch{DiarizationResultKey: &one, TranscriptionResultKey: &one}, `and(or(diarization_result_key.is.null,diarization_result_key.eq."a/b.json"),or(transcription_result_key.is.null,transcription_result_key.eq."a/b.json"))`},
	}
	for name, tc := range cases {
		if got := unsetOrEqual(tc.patch.keyColumns()); got != tc.want {
			t.Errorf("%s: got %s, want %s", name, got, tc.want)
		}
	}
}

func TestPostgrestStoreUpsert(t *testing.T) {
	store, fake := newPostgrestStore(t)

	doc, err := store.Upsert(context.Background(), models.Document{ID: "doc-3", TranscriptionType: models.TranscriptionTypeAutomatic, Language: "sv-SE"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if doc.TranscriptionStatus != models.TranscriptionStatusPending || doc.Language != "sv-SE" {
		t.Fatalf("doc = %+v", doc)
	}
	if _, ok := fake.rows["doc-3"]["transcription_status"]; !ok {
		t.Fatal("row missing status")
	}
}

func TestPostgrestStoreHonoursCancelledContext(t *testing.T) {
	store, fake := newPostgrestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Find(ctx, "doc-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(fake.patches) != 0 {
		t.Fatal("request sent after cancellation")
	}
}
