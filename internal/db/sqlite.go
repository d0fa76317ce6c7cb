package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"speakerscribe/models"
)

const sqliteSchema = `
	create table if not exists documents (
		id text primary key not null,
		transcription_type text not null default 'AUTOMATIC',
		transcription_status text not null default 'PENDING',
		language text not null default '',
		diarization_result_key text,
		transcription_result_key text,
		merged_result_key text,
		created_at integer not null,
		updated_at integer not null
	);`

const documentColumns = `id, transcription_type, transcription_status, language,
	diarization_result_key, transcription_result_key, merged_result_key,
	created_at, updated_at`

// OpenSQLite opens (and if needed creates) the document database at path.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}
	return db, nil
}

// SQLiteStore keeps documents in a local SQLite database. It is used for
// single-node deployments and local runs.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Find(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, "select "+documentColumns+" from documents where id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document by id: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, patch DocumentPatch, guard Guard) (*models.Document, error) {
	cols := patch.columns()
	if len(cols) == 0 {
		return nil, fmt.Errorf("empty patch for document %s", id)
	}
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	var q strings.Builder
	args := make([]any, 0, 2*len(cols)+4+len(guard.StatusIn))
	q.WriteString("update documents set ")
	for _, name := range names {
		fmt.Fprintf(&q, "%s = ?, ", name)
		args = append(args, cols[name])
	}
	q.WriteString("updated_at = ? where id = ?")
	args = append(args, time.Now().UnixMilli(), id)
	if len(guard.StatusIn) > 0 {
		q.WriteString(" and transcription_status in (" + placeholders(len(guard.StatusIn)) + ")")
		for _, st := range guard.statuses() {
			args = append(args, st)
		}
	}
	if guard.Type != "" {
		q.WriteString(" and transcription_type = ?")
		args = append(args, string(guard.Type))
	}
	for _, k := range patch.keyColumns() {
		fmt.Fprintf(&q, " and (%[1]s is null or %[1]s = ?)", k.name)
		args = append(args, k.value)
	}
	q.WriteString(" returning " + documentColumns)

	doc, err := scanDocument(s.db.QueryRowContext(ctx, q.String(), args...))
	if errors.Is(err, sql.ErrNoRows) {
		if _, findErr := s.Find(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, ErrGuardRejected
	}
	if err != nil {
		return nil, fmt.Errorf("updating document %s: %w", id, err)
	}
	return doc, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, doc models.Document) (*models.Document, error) {
	now := time.Now().UnixMilli()
	status := string(doc.TranscriptionStatus)
	row := s.db.QueryRowContext(ctx, `
		insert into documents (id, transcription_type, transcription_status, language, created_at, updated_at)
		values (?, ?, coalesce(nullif(?, ''), 'PENDING'), ?, ?, ?)
		on conflict (id) do update set
			transcription_type = excluded.transcription_type,
			language = excluded.language,
			transcription_status = case when ? = '' then documents.transcription_status else excluded.transcription_status end,
			updated_at = excluded.updated_at
		returning `+documentColumns,
		doc.ID, string(doc.TranscriptionType), status, doc.Language, now, now, status,
	)
	saved, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("persisting document into sqlite: %w", err)
	}
	return saved, nil
}

func scanDocument(row *sql.Row) (*models.Document, error) {
	var (
		doc                            models.Document
		typ, status                    string
		diarization, transcript, merge sql.NullString
		createdAt, updatedAt           int64
	)
	err := row.Scan(&doc.ID, &typ, &status, &doc.Language,
		&diarization, &transcript, &merge, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	doc.TranscriptionType = models.TranscriptionType(typ)
	doc.TranscriptionStatus = models.TranscriptionStatus(status)
	doc.DiarizationResultKey = nullableString(diarization)
	doc.TranscriptionResultKey = nullableString(transcript)
	doc.MergedResultKey = nullableString(merge)
	doc.CreatedAt = time.UnixMilli(createdAt).UTC()
	doc.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &doc, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
