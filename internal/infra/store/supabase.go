package store

import (
	"fmt"
	"time"

	supa "github.com/supabase-community/supabase-go"
)

// Client wraps the Supabase SDK client shared by all stores in this package.
type Client struct {
	sb *supa.Client
}

// NewClient creates a new Supabase client.
func NewClient(supabaseURL, serviceKey string) (*Client, error) {
	sb, err := supa.NewClient(supabaseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &Client{sb: sb}, nil
}

// ts formats a timestamp the way PostgREST expects.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses a PostgREST timestamp, returning the zero time on failure.
func parseTS(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseTSPtr parses an optional PostgREST timestamp.
func parseTSPtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t := parseTS(*s)
	if t.IsZero() {
		return nil
	}
	return &t
}
