// Package storage reads and writes pipeline artifacts in the audio bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	storage_go "github.com/supabase-community/storage-go"
)

// ErrObjectNotFound is returned when the requested key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// bucketClient is the subset of the storage-go client the store uses.
type bucketClient interface {
	DownloadFile(bucketId string, filePath string, urlOptions ...storage_go.UrlOptions) ([]byte, error)
	UploadFile(bucketId string, relativePath string, data io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
	GetPublicUrl(bucketId string, filePath string, urlOptions ...storage_go.UrlOptions) storage_go.SignedUrlResponse
}

// SupabaseStore is an object store backed by a Supabase Storage bucket.
type SupabaseStore struct {
	client bucketClient
	bucket string
	logger *logrus.Logger
}

// NewSupabaseStore binds a storage client to one bucket.
func NewSupabaseStore(client *storage_go.Client, bucket string, logger *logrus.Logger) *SupabaseStore {
	return &SupabaseStore{client: client, bucket: bucket, logger: logger}
}

// Get downloads the object stored under key.
func (s *SupabaseStore) Get(ctx context.Context, key string) ([]byte, error) {
	return call(ctx, func() ([]byte, error) {
		body, err := s.client.DownloadFile(s.bucket, key)
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, s.bucket, key)
			}
			return nil, fmt.Errorf("failed to download %s/%s: %w", s.bucket, key, err)
		}
		if len(body) == 0 {
			return nil, fmt.Errorf("%w: %s/%s is empty", ErrObjectNotFound, s.bucket, key)
		}
		return body, nil
	})
}

// Put uploads body under key, replacing any previous object. Visibility is a
// bucket policy in Supabase, so isPublic only controls whether the public URL
// is resolved and logged.
func (s *SupabaseStore) Put(ctx context.Context, key string, body []byte, contentType string, isPublic bool) error {
	upsert := true
	_, err := call(ctx, func() (struct{}, error) {
		_, err := s.client.UploadFile(s.bucket, key, bytes.NewReader(body), storage_go.FileOptions{
			ContentType: &contentType,
			Upsert:      &upsert,
		})
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to upload %s/%s: %w", s.bucket, key, err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	entry := s.logger.WithFields(logrus.Fields{
		"bucket":       s.bucket,
		"object_key":   key,
		"content_type": contentType,
		"size":         len(body),
	})
	if isPublic {
		entry = entry.WithField("public_url", s.client.GetPublicUrl(s.bucket, key).SignedURL)
	}
	entry.Info("Uploaded object")
	return nil
}

// call runs a blocking storage request and gives up when ctx is done. The
// storage client has no context support, so an abandoned request finishes
// in the background.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("storage request: %w", ctx.Err())
	}
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}
