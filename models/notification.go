package models

import "strings"

// EventTypeObjectCreatedPut is the event name storage emits for a plain upload.
const EventTypeObjectCreatedPut = "ObjectCreated:Put"

const objectCreatedPrefix = "ObjectCreated:"

// Notification is one storage object change, normalized from whichever
// envelope delivered it.
type Notification struct {
	Bucket    string `json:"bucket" validate:"required"`
	ObjectKey string `json:"object_key" validate:"required"`
	EventType string `json:"event_type" validate:"required"`
}

// IsObjectCreated reports whether the notification announces a new object.
// Put, Post, Copy and CompleteMultipartUpload all qualify.
func (n Notification) IsObjectCreated() bool {
	return strings.HasPrefix(n.EventType, objectCreatedPrefix)
}

// S3Event is the notification document S3 delivers (directly or inside an
// SQS message body).
type S3Event struct {
	Records []S3EventRecord `json:"Records"`
	// Event is only present on the s3:TestEvent sent when a notification
	// configuration is created.
	Event string `json:"Event,omitempty"`
}

// S3EventRecord is a single entry of S3Event.Records.
type S3EventRecord struct {
	EventSource string `json:"eventSource"`
	EventName   string `json:"eventName"`
	S3          struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

// SQSMessage is one message of an SQS ReceiveMessage response.
type SQSMessage struct {
	MessageID string  `json:"MessageId"`
	Body      *string `json:"Body,omitempty"`
}

// SQSBatch mirrors the ReceiveMessage output shape.
type SQSBatch struct {
	Messages []SQSMessage `json:"Messages"`
}

// StorageWebhook is the database webhook Supabase sends for rows inserted
// into storage.objects.
type StorageWebhook struct {
	Type   string `json:"type"`
	Table  string `json:"table"`
	Schema string `json:"schema"`
	Record *struct {
		BucketID string `json:"bucket_id"`
		Name     string `json:"name"`
	} `json:"record"`
}
