// Package supabase implements store.Store against a hosted Supabase project.
//
// Requests go through PostgREST with the service-role key, which bypasses
// row-level security; callers are expected to enforce access rules before
// reaching the store. PostgREST calls are not context aware, so the ctx
// arguments only gate the start of each call.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/yohanns/storefront/internal/store"
)

const (
	returnRows = "representation"
	countExact = "exact"
)

// Store is a store.Store backed by Supabase PostgREST.
type Store struct {
	client *supa.Client
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates a store for the project at url authenticated with the
// service-role key.
func New(url, serviceRoleKey string) (*Store, error) {
	client, err := supa.NewClient(url, serviceRoleKey, &supa.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &Store{client: client, now: time.Now}, nil
}

// Client returns the underlying Supabase client.
func (s *Store) Client() *supa.Client {
	return s.client
}

// Close is a no-op; PostgREST is stateless over HTTP.
func (s *Store) Close() error {
	return nil
}

func (s *Store) from(table string) *postgrest.QueryBuilder {
	return s.client.From(table)
}

// selectAll reads matching rows into a slice.
func selectAll[T any](ctx context.Context, fb *postgrest.FilterBuilder) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []T
	if _, err := fb.ExecuteTo(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// selectOne reads the first matching row, or store.ErrNotFound.
func selectOne[T any](ctx context.Context, fb *postgrest.FilterBuilder) (*T, error) {
	rows, err := selectAll[T](ctx, fb.Limit(1, ""))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return &rows[0], nil
}

// writeOne executes a write returning representation and decodes the first
// row into dst. No returned rows yields store.ErrNotFound.
func writeOne[T any](ctx context.Context, fb *postgrest.FilterBuilder, dst *T) error {
	rows, err := selectAll[T](ctx, fb)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	*dst = rows[0]
	return nil
}

// toRow converts a domain value into a column map. An empty or zero "id"
// is dropped so the database default applies; omit removes computed
// fields that are not columns.
func toRow(v any, omit ...string) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode row: %w", err)
	}
	row := map[string]any{}
	if err := json.Unmarshal(b, &row); err != nil {
		return nil, fmt.Errorf("failed to encode row: %w", err)
	}
	switch id := row["id"].(type) {
	case string:
		if id == "" {
			delete(row, "id")
		}
	case float64:
		if id == 0 {
			delete(row, "id")
		}
	}
	for _, k := range omit {
		delete(row, k)
	}
	return row, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func wrap(op string, err error) error {
	if err == nil || err == store.ErrNotFound {
		return err
	}
	return fmt.Errorf("supabase: %s: %w", op, err)
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
