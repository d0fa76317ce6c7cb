package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	postgrest "github.com/supabase-community/postgrest-go"

	"speakerscribe/models"
)

// DefaultDocumentsTable is the table holding document rows.
const DefaultDocumentsTable = "documents"

// TableClient is satisfied by both *postgrest.Client and *supabase.Client.
type TableClient interface {
	From(table string) *postgrest.QueryBuilder
}

// PostgrestStore keeps documents in a Supabase/PostgREST table.
type PostgrestStore struct {
	client TableClient
	table  string
	logger *logrus.Logger
}

// NewPostgrestStore creates a store over the given table.
func NewPostgrestStore(client TableClient, table string, logger *logrus.Logger) *PostgrestStore {
	if table == "" {
		table = DefaultDocumentsTable
	}
	return &PostgrestStore{client: client, table: table, logger: logger}
}

// Find loads a document by id.
// postgrest-go has no context support; ctx is only checked before the call.
func (s *PostgrestStore) Find(ctx context.Context, id string) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var docs []models.Document
	_, err := s.client.From(s.table).
		Select("*", "", false).
		Eq("id", id).
		Limit(1, "").
		ExecuteTo(&docs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document %s: %w", id, err)
	}
	if len(docs) == 0 {
		return nil, ErrRecordNotFound
	}
	return &docs[0], nil
}

// Update applies the patch to the row only if it matches the guard, using a
// single filtered PATCH so concurrent writers cannot interleave.
func (s *PostgrestStore) Update(ctx context.Context, id string, patch DocumentPatch, guard Guard) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	updates := patch.columns()
	if len(updates) == 0 {
		return nil, fmt.Errorf("empty patch for document %s", id)
	}
	updates["updated_at"] = time.Now()

	query := s.client.From(s.table).
		Update(updates, "representation", "exact").
		Eq("id", id)
	if len(guard.StatusIn) > 0 {
		query = query.In("transcription_status", guard.statuses())
	}
	if guard.Type != "" {
		query = query.Eq("transcription_type", string(guard.Type))
	}
	if cond := unsetOrEqual(patch.keyColumns()); cond != "" {
		query = query.Or(cond, "")
	}

	var docs []models.Document
	count, err := query.ExecuteTo(&docs)
	if err != nil {
		return nil, fmt.Errorf("failed to update document %s: %w", id, err)
	}
	if count == 0 || len(docs) == 0 {
		// Tell a guard miss apart from a missing row.
		if _, findErr := s.Find(ctx, id); findErr != nil {
			if errors.Is(findErr, ErrRecordNotFound) {
				return nil, ErrRecordNotFound
			}
			return nil, findErr
		}
		s.logger.WithFields(logrus.Fields{
			"document_id": id,
			"guard":       guard.statuses(),
		}).Debug("Document update matched no rows")
		return nil, ErrGuardRejected
	}
	return &docs[0], nil
}

// unsetOrEqual builds the PostgREST logic tree that keeps key columns
// write-once. PostgREST accepts a single or= parameter, so several keys are
// nested under and().
func unsetOrEqual(keys []keyColumn) string {
	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = fmt.Sprintf("%[1]s.is.null,%[1]s.eq.%[2]s", k.name, quoteFilterValue(k.value))
	}
	switch len(conds) {
	case 0:
		return ""
	case 1:
		return conds[0]
	}
	for i, c := range conds {
		conds[i] = "or(" + c + ")"
	}
	return "and(" + strings.Join(conds, ",") + ")"
}

// quoteFilterValue double-quotes a value for use inside a logic tree, where
// commas, dots and parentheses are otherwise reserved.
func quoteFilterValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

// Upsert inserts or replaces the document row keyed by id.
func (s *PostgrestStore) Upsert(ctx context.Context, doc models.Document) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := map[string]interface{}{
		"id":                 doc.ID,
		"transcription_type": string(doc.TranscriptionType),
		"language":           doc.Language,
		"updated_at":         time.Now(),
	}
	// Status is left to the column default (or its current value) unless set.
	if doc.TranscriptionStatus != "" {
		row["transcription_status"] = string(doc.TranscriptionStatus)
	}
	body, _, err := s.client.From(s.table).
		Upsert(row, "id", "representation", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}
	var docs []models.Document
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode upserted document %s: %w", doc.ID, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no record returned after upsert, id: %s", doc.ID)
	}
	s.logger.WithField("document_id", doc.ID).Info("Upserted document record")
	return &docs[0], nil
}
