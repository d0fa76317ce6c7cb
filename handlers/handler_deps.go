package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"speakerscribe/internal/db"
	"speakerscribe/internal/jobs"
	"speakerscribe/internal/pipeline"
	"speakerscribe/internal/worker"
)

// NotificationProcessor runs decoded notification records through the pipeline.
type NotificationProcessor interface {
	ProcessRecords(ctx context.Context, records []pipeline.Record) []pipeline.Outcome
}

// JobQueue accepts background jobs.
type JobQueue interface {
	Submit(job worker.Job) error
	QueueLen() int
}

// ApplicationHandler holds shared dependencies for handlers.
type ApplicationHandler struct {
	Processor NotificationProcessor
	Queue     JobQueue
	Batches   *jobs.Tracker
	Documents db.DocumentStore
	Logger    *logrus.Logger
	validate  *validator.Validate
}

// NewApplicationHandler creates a new ApplicationHandler with the given dependencies.
func NewApplicationHandler(processor NotificationProcessor, queue JobQueue, batches *jobs.Tracker, documents db.DocumentStore, logger *logrus.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		Processor: processor,
		Queue:     queue,
		Batches:   batches,
		Documents: documents,
		Logger:    logger,
		validate:  validator.New(),
	}
}

// ErrorResponse defines a common structure for error responses.
type ErrorResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}
