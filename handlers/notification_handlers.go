package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"speakerscribe/internal/jobs"
	"speakerscribe/internal/pipeline"
	"speakerscribe/internal/worker"
	"speakerscribe/middleware"
	"speakerscribe/utils"
)

// BatchAcceptedResponse is returned when a batch was queued.
type BatchAcceptedResponse struct {
	BatchID string `json:"batch_id"`
	Records int    `json:"records"`
}

// ReceiveNotifications godoc
// @Summary Receive storage notifications
// @Description Accepts an S3 event, an SQS message batch, a Supabase storage webhook or a JSON array of notifications and queues it for processing. With sync=true the batch is processed inline and the per-record outcomes are returned.
// @Tags notifications
// @Accept  json
// @Produce  json
// @Param   sync query bool false "Process inline"
// @Param   X-Webhook-Secret header string false "Shared webhook secret"
// @Success 200 {array} pipeline.Outcome "Outcomes of an inline batch"
// @Success 202 {object} BatchAcceptedResponse "Batch queued"
// @Failure 400 {object} ErrorResponse "Body is not a known notification envelope"
// @Failure 401 {object} ErrorResponse "Wrong webhook secret"
// @Failure 503 {object} ErrorResponse "Queue is full, redeliver later"
// @Router /api/v1/notifications [post]
func (h *ApplicationHandler) ReceiveNotifications(c *fiber.Ctx) error {
	log := h.Logger.WithField("request_id", middleware.RequestID(c))

	records, err := pipeline.DecodeEnvelope(c.Body())
	if err != nil {
		log.WithError(err).Warn("Rejected notification body")
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot decode notification body: "+err.Error())
	}

	if c.QueryBool("sync") {
		outcomes := h.Processor.ProcessRecords(c.UserContext(), records)
		return utils.RespondWithJSON(c, fiber.StatusOK, outcomes)
	}

	job := jobs.NewProcessBatchJob(h.Processor, records, h.Batches)
	if err := h.Queue.Submit(job); err != nil {
		h.Batches.Forget(job.ID())
		if errors.Is(err, worker.ErrQueueFull) || errors.Is(err, worker.ErrPoolStopped) {
			log.WithError(err).Warn("Could not queue notification batch")
			return utils.RespondWithError(c, fiber.StatusServiceUnavailable, "Notification queue is unavailable, retry later")
		}
		log.WithError(err).Error("Could not queue notification batch")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not queue notification batch")
	}

	log.WithFields(logrus.Fields{"batch_id": job.ID(), "records": len(records)}).Info("Queued notification batch")
	return utils.RespondWithJSON(c, fiber.StatusAccepted, BatchAcceptedResponse{BatchID: job.ID(), Records: len(records)})
}

// GetBatch godoc
// @Summary Get the state of a queued notification batch
// @Tags notifications
// @Produce  json
// @Param   batchId path string true "Batch ID"
// @Success 200 {object} jobs.BatchState
// @Failure 400 {object} ErrorResponse "Invalid batch id"
// @Failure 404 {object} ErrorResponse "Unknown or expired batch"
// @Router /api/v1/batches/{batchId} [get]
func (h *ApplicationHandler) GetBatch(c *fiber.Ctx) error {
	batchID, err := uuid.Parse(c.Params("batchId"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid batch ID format")
	}
	state, ok := h.Batches.Get(batchID.String())
	if !ok {
		return utils.RespondWithError(c, fiber.StatusNotFound, "Batch not found")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, state)
}
