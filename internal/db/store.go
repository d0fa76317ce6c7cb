package db

import (
	"context"
	"errors"

	"speakerscribe/models"
)

// ErrRecordNotFound is returned when a database record is not found.
var ErrRecordNotFound = errors.New("record not found")

// ErrGuardRejected is returned by Update when the row exists but did not
// match the guard, so nothing was written.
var ErrGuardRejected = errors.New("update guard rejected")

// DocumentPatch lists the columns an update writes. Nil fields are left
// untouched. Key columns are write-once: an update that sets one only
// matches a row where the column is null or already holds the same key.
type DocumentPatch struct {
	TranscriptionStatus    *models.TranscriptionStatus
	DiarizationResultKey   *string
	TranscriptionResultKey *string
	MergedResultKey        *string
}

// Guard restricts an update to rows in a known state. Together with the
// patch it forms a single conditional write.
type Guard struct {
	StatusIn []models.TranscriptionStatus
	Type     models.TranscriptionType
}

// DocumentStore is the persistence contract the pipeline relies on.
type DocumentStore interface {
	Find(ctx context.Context, id string) (*models.Document, error)
	Update(ctx context.Context, id string, patch DocumentPatch, guard Guard) (*models.Document, error)
	Upsert(ctx context.Context, doc models.Document) (*models.Document, error)
}

func (p DocumentPatch) columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p.TranscriptionStatus != nil {
		cols["transcription_status"] = string(*p.TranscriptionStatus)
	}
	if p.DiarizationResultKey != nil {
		cols["diarization_result_key"] = *p.DiarizationResultKey
	}
	if p.TranscriptionResultKey != nil {
		cols["transcription_result_key"] = *p.TranscriptionResultKey
	}
	if p.MergedResultKey != nil {
		cols["merged_result_key"] = *p.MergedResultKey
	}
	return cols
}

type keyColumn struct {
	name  string
	value string
}

// keyColumns returns the write-once key columns the patch sets, in column
// order.
func (p DocumentPatch) keyColumns() []keyColumn {
	var keys []keyColumn
	if p.DiarizationResultKey != nil {
		keys = append(keys, keyColumn{"diarization_result_key", *p.DiarizationResultKey})
	}
	if p.MergedResultKey != nil {
		keys = append(keys, keyColumn{"merged_result_key", *p.MergedResultKey})
	}
	if p.TranscriptionResultKey != nil {
		keys = append(keys, keyColumn{"transcription_result_key", *p.TranscriptionResultKey})
	}
	return keys
}

func (g Guard) statuses() []string {
	out := make([]string, len(g.StatusIn))
	for i, s := range g.StatusIn {
		out[i] = string(s)
	}
	return out
}

// StatusPtr is a small helper for building patches.
func StatusPtr(s models.TranscriptionStatus) *models.TranscriptionStatus {
	return &s
}
