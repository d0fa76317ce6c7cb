package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"

	"speakerscribe/models"
)

// ErrUnknownEnvelope is returned for bodies that are none of the accepted
// notification formats.
var ErrUnknownEnvelope = errors.New("unrecognized notification envelope")

const (
	s3TestEvent = "s3:TestEvent"

	webhookSchema = "storage"
	webhookTable  = "objects"
	webhookInsert = "INSERT"
)

var validate = validator.New()

// Record is one entry of a decoded envelope. Entries that could not be turned
// into a notification carry their final outcome instead.
type Record struct {
	Notification models.Notification
	Outcome      *Outcome
}

type envelopeProbe struct {
	Records  json.RawMessage `json:"Records"`
	Event    string          `json:"Event"`
	Messages json.RawMessage `json:"Messages"`
	Type     string          `json:"type"`
	Table    string          `json:"table"`
}

// DecodeEnvelope accepts an S3 event, an SQS receive-message batch whose
// bodies are S3 events, a Supabase storage.objects database webhook, or a
// plain JSON array of notifications.
func DecodeEnvelope(body []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUnknownEnvelope)
	}
	if trimmed[0] == '[' {
		return decodeNotificationList(trimmed)
	}

	var probe envelopeProbe
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownEnvelope, err)
	}
	switch {
	case probe.Messages != nil:
		var batch models.SQSBatch
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("decoding sqs batch: %w", err)
		}
		return decodeSQSBatch(batch), nil
	case probe.Records != nil || probe.Event != "":
		var event models.S3Event
		if err := json.Unmarshal(trimmed, &event); err != nil {
			return nil, fmt.Errorf("decoding s3 event: %w", err)
		}
		return decodeS3Event(event), nil
	case probe.Type != "" && probe.Table != "":
		var hook models.StorageWebhook
		if err := json.Unmarshal(trimmed, &hook); err != nil {
			return nil, fmt.Errorf("decoding storage webhook: %w", err)
		}
		return []Record{decodeStorageWebhook(hook)}, nil
	}
	return nil, ErrUnknownEnvelope
}

// ProcessRecords processes decoded records in order. Records that already
// carry an outcome are logged and returned as they are.
func (p *Processor) ProcessRecords(ctx context.Context, records []Record) []Outcome {
	outcomes := make([]Outcome, 0, len(records))
	for _, r := range records {
		if r.Outcome != nil {
			p.logOutcome(*r.Outcome)
			outcomes = append(outcomes, *r.Outcome)
			continue
		}
		outcomes = append(outcomes, p.Process(ctx, r.Notification))
	}
	return outcomes
}

// ProcessEnvelope decodes body and processes every record in it.
func (p *Processor) ProcessEnvelope(ctx context.Context, body []byte) ([]Outcome, error) {
	records, err := DecodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	return p.ProcessRecords(ctx, records), nil
}

func decodeNotificationList(body []byte) ([]Record, error) {
	var list []models.Notification
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decoding notification list: %w", err)
	}
	records := make([]Record, len(list))
	for i, n := range list {
		records[i] = Record{Notification: n}
		if err := validate.Struct(n); err != nil {
			out := Outcome{Notification: n}.fail(validationError(fmt.Sprintf("validate notification %d", i), "", err))
			records[i].Outcome = &out
		}
	}
	return records, nil
}

func decodeS3Event(event models.S3Event) []Record {
	if event.Event == s3TestEvent {
		out := Outcome{}.skip("storage test event")
		return []Record{{Outcome: &out}}
	}
	records := make([]Record, 0, len(event.Records))
	for _, r := range event.Records {
		records = append(records, Record{Notification: models.Notification{
			Bucket:    r.S3.Bucket.Name,
			ObjectKey: unescapeKey(r.S3.Object.Key),
			EventType: r.EventName,
		}})
	}
	return records
}

func decodeSQSBatch(batch models.SQSBatch) []Record {
	var records []Record
	for _, m := range batch.Messages {
		if m.Body == nil {
			out := Outcome{}.fail(validationError("decode message "+m.MessageID, "", errors.New("message has no body")))
			records = append(records, Record{Outcome: &out})
			continue
		}
		var event models.S3Event
		if err := json.Unmarshal([]byte(*m.Body), &event); err != nil {
			out := Outcome{}.fail(validationError("decode message "+m.MessageID, "", err))
			records = append(records, Record{Outcome: &out})
			continue
		}
		records = append(records, decodeS3Event(event)...)
	}
	return records
}

// decodeStorageWebhook maps an insert into storage.objects to an object
// creation. Other row changes keep their webhook type as event type and are
// filtered out as non-creation events.
func decodeStorageWebhook(hook models.StorageWebhook) Record {
	var n models.Notification
	if hook.Record != nil {
		n.Bucket = hook.Record.BucketID
		n.ObjectKey = hook.Record.Name
	}
	if hook.Schema == webhookSchema && hook.Table == webhookTable && hook.Type == webhookInsert {
		n.EventType = models.EventTypeObjectCreatedPut
	} else {
		n.EventType = fmt.Sprintf("%s.%s:%s", hook.Schema, hook.Table, hook.Type)
	}
	return Record{Notification: n}
}

// unescapeKey decodes the form encoding S3 applies to object keys in event
// notifications. Keys that fail to decode are used as they are.
func unescapeKey(key string) string {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return key
	}
	return decoded
}
