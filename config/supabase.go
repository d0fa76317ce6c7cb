package config

import (
	"errors"
	"fmt"

	supa "github.com/supabase-community/supabase-go"
)

// NewSupabaseClient initializes a Supabase client with the service key.
// Its PostgREST side backs the document store and its Storage side the
// artifact bucket.
func NewSupabaseClient(url, serviceKey string) (*supa.Client, error) {
	if url == "" || serviceKey == "" {
		return nil, errors.New("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}
	client, err := supa.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing supabase client: %w", err)
	}
	return client, nil
}
