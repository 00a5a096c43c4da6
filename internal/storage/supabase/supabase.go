// Package supabase stores targets and leads through a Supabase project's
// PostgREST endpoint using the service role key.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/leadgen/internal/storage"
	postgrest "github.com/supabase-community/postgrest-go"
)

// ensure supabaseBackend implements storage.Backend
var _ storage.Backend = (*supabaseBackend)(nil)

const (
	targetsTable = "targets"
	leadsTable   = "leads"

	targetColumns = "id,name,criteria,processed,created_at"
	leadColumns   = "id,target_id,data,created_at"
)

// pageSize matches Supabase's default max-rows, so unbounded reads walk the
// table in pages instead of silently stopping at the cap.
var pageSize = 1000

type supabaseBackend struct {
	client *postgrest.Client
}

type targetRow struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Criteria  json.RawMessage `json:"criteria"`
	Processed bool            `json:"processed"`
	CreatedAt time.Time       `json:"created_at"`
}

type leadRow struct {
	ID        int64          `json:"id,omitempty"`
	TargetID  int64          `json:"target_id"`
	Data      map[string]any `json:"data"`
	CreatedAt *time.Time     `json:"created_at,omitempty"`
}

// New creates a Supabase-backed storage.Backend. projectURL is the project
// root, e.g. https://abc.supabase.co.
func New(projectURL, serviceKey string) (storage.Backend, error) {
	if projectURL == "" || serviceKey == "" {
		return nil, fmt.Errorf("supabase: project url and service role key are required")
	}
	if _, err := url.Parse(projectURL); err != nil {
		return nil, fmt.Errorf("supabase: parse project url: %w", err)
	}
	client := postgrest.NewClient(strings.TrimRight(projectURL, "/")+"/rest/v1", "", map[string]string{
		"apikey":        serviceKey,
		"Authorization": "Bearer " + serviceKey,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("supabase: %w", client.ClientError)
	}
	return &supabaseBackend{client: client}, nil
}

// The postgrest calls take no context, so cancellation is honored between
// requests rather than during one.

func (b *supabaseBackend) AddTarget(ctx context.Context, t *storage.Target) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storage.WriteErr("add_target", err)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	body := map[string]any{
		"name":       t.Name,
		"criteria":   t.Criteria,
		"processed":  t.Processed,
		"created_at": t.CreatedAt,
	}

	var rows []targetRow
	if _, err := b.client.From(targetsTable).Insert(body, false, "", "representation", "").ExecuteTo(&rows); err != nil {
		return 0, storage.WriteErr("add_target", err)
	}
	if len(rows) == 0 {
		return 0, storage.WriteErr("add_target", fmt.Errorf("insert returned no rows"))
	}
	t.ID = rows[0].ID
	return t.ID, nil
}

func (b *supabaseBackend) FetchPending(ctx context.Context) ([]*storage.Target, error) {
	pending := false
	targets, err := b.queryTargets(ctx, storage.TargetFilter{Processed: &pending})
	return targets, storage.ReadErr("fetch_pending", err)
}

func (b *supabaseBackend) MarkProcessed(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return storage.WriteErr("mark_processed", err)
	}
	var rows []targetRow
	_, err := b.client.From(targetsTable).
		Update(map[string]any{"processed": true}, "representation", "").
		Eq("id", strconv.FormatInt(id, 10)).
		ExecuteTo(&rows)
	if err != nil {
		return storage.WriteErr("mark_processed", err)
	}
	if len(rows) == 0 {
		return storage.WriteErr("mark_processed", fmt.Errorf("id %d: %w", id, storage.ErrTargetNotFound))
	}
	return nil
}

func (b *supabaseBackend) InsertLead(ctx context.Context, lead *storage.Lead) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storage.WriteErr("insert_lead", err)
	}
	row := leadRow{TargetID: lead.TargetID, Data: lead.Data}
	if row.Data == nil {
		row.Data = map[string]any{}
	}
	if !lead.CreatedAt.IsZero() {
		row.CreatedAt = &lead.CreatedAt
	}

	var rows []leadRow
	if _, err := b.client.From(leadsTable).Insert(row, false, "", "representation", "").ExecuteTo(&rows); err != nil {
		return 0, storage.WriteErr("insert_lead", err)
	}
	if len(rows) == 0 {
		return 0, storage.WriteErr("insert_lead", fmt.Errorf("insert returned no rows"))
	}
	lead.ID = rows[0].ID
	if rows[0].CreatedAt != nil {
		lead.CreatedAt = *rows[0].CreatedAt
	}
	return lead.ID, nil
}

func (b *supabaseBackend) QueryTargets(ctx context.Context, filter storage.TargetFilter) ([]*storage.Target, error) {
	targets, err := b.queryTargets(ctx, filter)
	return targets, storage.ReadErr("query_targets", err)
}

func (b *supabaseBackend) queryTargets(ctx context.Context, filter storage.TargetFilter) ([]*storage.Target, error) {
	rows, err := readPages(ctx, filter.Limit, filter.Offset, func(from, to int) ([]targetRow, error) {
		q := b.client.From(targetsTable).Select(targetColumns, "", false)
		if filter.Processed != nil {
			q = q.Eq("processed", strconv.FormatBool(*filter.Processed))
		}
		var page []targetRow
		_, err := q.Order("id", &postgrest.OrderOpts{Ascending: true}).Range(from, to, "").ExecuteTo(&page)
		return page, err
	})
	if err != nil {
		return nil, err
	}

	targets := make([]*storage.Target, 0, len(rows))
	for _, r := range rows {
		targets = append(targets, &storage.Target{
			ID:        r.ID,
			Name:      r.Name,
			Criteria:  criteriaText(r.Criteria),
			Processed: r.Processed,
			CreatedAt: r.CreatedAt,
		})
	}
	return targets, nil
}

func (b *supabaseBackend) QueryLeads(ctx context.Context, filter storage.LeadFilter) ([]*storage.Lead, error) {
	rows, err := readPages(ctx, filter.Limit, filter.Offset, func(from, to int) ([]leadRow, error) {
		q := b.client.From(leadsTable).Select(leadColumns, "", false)
		if filter.TargetID != 0 {
			q = q.Eq("target_id", strconv.FormatInt(filter.TargetID, 10))
		}
		if filter.Since != nil {
			q = q.Gte("created_at", filter.Since.UTC().Format(time.RFC3339Nano))
		}
		var page []leadRow
		_, err := q.Order("id", &postgrest.OrderOpts{Ascending: true}).Range(from, to, "").ExecuteTo(&page)
		return page, err
	})
	if err != nil {
		return nil, storage.ReadErr("query_leads", err)
	}

	leads := make([]*storage.Lead, 0, len(rows))
	for _, r := range rows {
		l := &storage.Lead{ID: r.ID, TargetID: r.TargetID, Data: r.Data}
		if r.CreatedAt != nil {
			l.CreatedAt = *r.CreatedAt
		}
		leads = append(leads, l)
	}
	return leads, nil
}

// readPages calls fetch with inclusive row ranges starting at offset until a
// short page comes back or limit rows are collected. limit <= 0 means all.
func readPages[T any](ctx context.Context, limit, offset int, fetch func(from, to int) ([]T, error)) ([]T, error) {
	if offset < 0 {
		offset = 0
	}
	var out []T
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := pageSize
		if limit > 0 && limit-len(out) < n {
			n = limit - len(out)
		}
		page, err := fetch(offset, offset+n-1)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		offset += len(page)
		if len(page) < n || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
	}
}

// criteriaText flattens a json or jsonb criteria column back to its raw text.
// JSON strings are unquoted; objects are kept verbatim.
func criteriaText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (b *supabaseBackend) Close() error { return nil }
