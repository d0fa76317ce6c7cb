package jobs

import (
	"sync"
	"time"

	"speakerscribe/internal/pipeline"
)

// BatchStatus is the lifecycle of a queued notification batch.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "PENDING"
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusCompleted  BatchStatus = "COMPLETED"
)

// DefaultTrackerLimit is how many batches a tracker remembers.
const DefaultTrackerLimit = 1000

// BatchState is the tracked state of one batch.
type BatchState struct {
	BatchID   string             `json:"batch_id"`
	Status    BatchStatus        `json:"status"`
	Records   int                `json:"records"`
	Failed    int                `json:"failed"`
	Outcomes  []pipeline.Outcome `json:"outcomes,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Tracker keeps the state of recent batches in memory. Once more than its
// limit are tracked the oldest are forgotten.
type Tracker struct {
	mu      sync.Mutex
	limit   int
	order   []string
	batches map[string]*BatchState
	now     func() time.Time
}

// NewTracker creates a tracker that remembers up to limit batches.
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultTrackerLimit
	}
	return &Tracker{limit: limit, batches: make(map[string]*BatchState), now: time.Now}
}

// Create registers a new PENDING batch.
func (t *Tracker) Create(batchID string, records int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.batches[batchID] = &BatchState{BatchID: batchID, Status: BatchStatusPending, Records: records, CreatedAt: now, UpdatedAt: now}
	t.order = append(t.order, batchID)
	for len(t.order) > t.limit {
		delete(t.batches, t.order[0])
		t.order = t.order[1:]
	}
}

// Start marks a batch as PROCESSING.
func (t *Tracker) Start(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.batches[batchID]; ok {
		b.Status = BatchStatusProcessing
		b.UpdatedAt = t.now()
	}
}

// Complete stores the outcomes of a batch and marks it COMPLETED.
func (t *Tracker) Complete(batchID string, outcomes []pipeline.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	if !ok {
		return
	}
	b.Status = BatchStatusCompleted
	b.Outcomes = outcomes
	b.Failed = 0
	for _, o := range outcomes {
		if o.Stage == pipeline.StageFailed {
			b.Failed++
		}
	}
	b.UpdatedAt = t.now()
}

// Get returns a copy of the tracked state of a batch.
func (t *Tracker) Get(batchID string) (BatchState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	if !ok {
		return BatchState{}, false
	}
	state := *b
	state.Outcomes = append([]pipeline.Outcome(nil), b.Outcomes...)
	return state, true
}

// Forget drops a batch, e.g. one that was never queued.
func (t *Tracker) Forget(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.batches, batchID)
	for i, id := range t.order {
		if id == batchID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}
