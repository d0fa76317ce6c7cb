package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"speakerscribe/internal/db"
	"speakerscribe/middleware"
	"speakerscribe/models"
	"speakerscribe/utils"
)

// RegisterDocumentRequest is the body of a document registration.
type RegisterDocumentRequest struct {
	TranscriptionType models.TranscriptionType `json:"transcription_type" validate:"required,oneof=AUTOMATIC MANUAL"`
	Language          string                   `json:"language" validate:"required"`
}

// RegisterDocument godoc
// @Summary Register a document
// @Description Creates the document record an upload belongs to, or updates its type and language. The transcription status of an existing document is kept.
// @Tags documents
// @Accept  json
// @Produce  json
// @Param   id path string true "Document ID"
// @Param   document body RegisterDocumentRequest true "Document settings"
// @Success 200 {object} models.Document
// @Failure 400 {object} ErrorResponse "Invalid id or body"
// @Failure 500 {object} ErrorResponse "Store error"
// @Router /api/v1/documents/{id} [put]
func (h *ApplicationHandler) RegisterDocument(c *fiber.Ctx) error {
	id := utils.SanitizeInput(c.Params("id"))
	if !validDocumentID(id) {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Document ID must be non-empty and contain no '/' or '.'")
	}

	req := new(RegisterDocumentRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot parse document JSON: "+err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.RespondWithValidationErrors(c, err)
	}

	doc, err := h.Documents.Upsert(c.UserContext(), models.Document{
		ID:                id,
		TranscriptionType: req.TranscriptionType,
		Language:          req.Language,
	})
	if err != nil {
		h.Logger.WithFields(logrus.Fields{
			"request_id":  middleware.RequestID(c),
			"document_id": id,
		}).WithError(err).Error("Could not register document")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not register document")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, doc)
}

// GetDocument godoc
// @Summary Get a document's transcription state
// @Tags documents
// @Produce  json
// @Param   id path string true "Document ID"
// @Success 200 {object} models.Document
// @Failure 404 {object} ErrorResponse "Document not found"
// @Failure 500 {object} ErrorResponse "Store error"
// @Router /api/v1/documents/{id} [get]
func (h *ApplicationHandler) GetDocument(c *fiber.Ctx) error {
	id := utils.SanitizeInput(c.Params("id"))
	doc, err := h.Documents.Find(c.UserContext(), id)
	if errors.Is(err, db.ErrRecordNotFound) {
		return utils.RespondWithError(c, fiber.StatusNotFound, "Document not found")
	}
	if err != nil {
		h.Logger.WithField("document_id", id).WithError(err).Error("Could not load document")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not load document")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, doc)
}

// validDocumentID rejects ids that could not round-trip through an object
// key: the id is everything before the first '.' of the file name.
func validDocumentID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/.")
}
