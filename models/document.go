package models

import (
	"time"
)

// TranscriptionType decides whether the automated pipeline owns a document.
type TranscriptionType string

const (
	TranscriptionTypeAutomatic TranscriptionType = "AUTOMATIC"
	TranscriptionTypeManual    TranscriptionType = "MANUAL"
)

// TranscriptionStatus is the lifecycle stage of the automated transcript.
// PENDING -> PROCESSING (first result recorded) -> DONE (merge written).
type TranscriptionStatus string

const (
	TranscriptionStatusPending    TranscriptionStatus = "PENDING"
	TranscriptionStatusProcessing TranscriptionStatus = "PROCESSING"
	TranscriptionStatusDone       TranscriptionStatus = "DONE"
)

// Document represents the structure of a document row in the database.
// Result keys are nullable and are only ever set once.
type Document struct {
	ID                     string              `json:"id"`
	TranscriptionType      TranscriptionType   `json:"transcription_type"`
	TranscriptionStatus    TranscriptionStatus `json:"transcription_status"`
	Language               string              `json:"language"`
	DiarizationResultKey   *string             `json:"diarization_result_key,omitempty"`
	TranscriptionResultKey *string             `json:"transcription_result_key,omitempty"`
	MergedResultKey        *string             `json:"merged_result_key,omitempty"`
	CreatedAt              time.Time           `json:"created_at,omitempty"`
	UpdatedAt              time.Time           `json:"updated_at,omitempty"`
}

// IsManual reports whether a human owns the transcript.
func (d *Document) IsManual() bool {
	return d.TranscriptionType == TranscriptionTypeManual
}

// IsDone reports whether the merged transcript has been written.
func (d *Document) IsDone() bool {
	return d.TranscriptionStatus == TranscriptionStatusDone
}

// ReadyToMerge reports whether both analysis results are recorded and the
// merge has not yet completed.
func (d *Document) ReadyToMerge() bool {
	return hasValue(d.DiarizationResultKey) &&
		hasValue(d.TranscriptionResultKey) &&
		d.TranscriptionStatus == TranscriptionStatusProcessing
}

func hasValue(s *string) bool {
	return s != nil && *s != ""
}
