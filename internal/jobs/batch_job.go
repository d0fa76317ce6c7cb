package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"speakerscribe/internal/pipeline"
)

// JobTypeProcessNotifications identifies notification batch jobs.
const JobTypeProcessNotifications = "PROCESS_NOTIFICATIONS"

// RecordProcessor runs decoded notification records through the pipeline.
type RecordProcessor interface {
	ProcessRecords(ctx context.Context, records []pipeline.Record) []pipeline.Outcome
}

// ProcessBatchJob processes one delivered notification batch.
// It implements the worker.Job interface.
type ProcessBatchJob struct {
	BatchID   string
	Records   []pipeline.Record
	processor RecordProcessor
	tracker   *Tracker
}

// NewProcessBatchJob creates a job for records under a fresh batch id and
// registers it with the tracker as PENDING.
func NewProcessBatchJob(processor RecordProcessor, records []pipeline.Record, tracker *Tracker) *ProcessBatchJob {
	j := &ProcessBatchJob{
		BatchID:   uuid.NewString(),
		Records:   records,
		processor: processor,
		tracker:   tracker,
	}
	if tracker != nil {
		tracker.Create(j.BatchID, len(records))
	}
	return j
}

// ID returns the unique identifier of the job.
func (j *ProcessBatchJob) ID() string {
	return j.BatchID
}

// Type returns the type of the job.
func (j *ProcessBatchJob) Type() string {
	return JobTypeProcessNotifications
}

// Execute processes every record. Individual records that fail do not stop
// the batch; the returned error only summarizes them for the worker log.
func (j *ProcessBatchJob) Execute(ctx context.Context) error {
	if j.tracker != nil {
		j.tracker.Start(j.BatchID)
	}
	outcomes := j.processor.ProcessRecords(ctx, j.Records)
	if j.tracker != nil {
		j.tracker.Complete(j.BatchID, outcomes)
	}

	failed := 0
	for _, o := range outcomes {
		if o.Stage == pipeline.StageFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("batch %s: %d of %d records failed", j.BatchID, failed, len(outcomes))
	}
	return nil
}
