package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/FranksOps/leadgen/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

const (
	targetsFile = "targets.jsonl"
	leadsFile   = "leads.jsonl"
)

type jsonBackend struct {
	mu    sync.Mutex
	dir   string
	leads *os.File

	nextTargetID int64
	nextLeadID   int64
}

// New creates an NDJSON-backed storage.Backend rooted at dir. Targets live in
// targets.jsonl and leads are appended to leads.jsonl.
func New(dir string) (storage.Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	b := &jsonBackend{dir: dir}

	targets, err := b.readTargets()
	if err != nil {
		return nil, err
	}
	for _, t := range targets {
		if t.ID >= b.nextTargetID {
			b.nextTargetID = t.ID
		}
	}

	leads, err := b.readLeads()
	if err != nil {
		return nil, err
	}
	for _, l := range leads {
		if l.ID >= b.nextLeadID {
			b.nextLeadID = l.ID
		}
	}

	f, err := os.OpenFile(filepath.Join(dir, leadsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open leads file: %w", err)
	}
	b.leads = f

	return b, nil
}

func (b *jsonBackend) AddTarget(ctx context.Context, t *storage.Target) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.ID = b.nextTargetID + 1

	data, err := json.Marshal(t)
	if err != nil {
		return 0, storage.WriteErr("add_target", err)
	}

	f, err := os.OpenFile(filepath.Join(b.dir, targetsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, storage.WriteErr("add_target", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return 0, storage.WriteErr("add_target", err)
	}
	b.nextTargetID = t.ID
	return t.ID, nil
}

func (b *jsonBackend) FetchPending(ctx context.Context) ([]*storage.Target, error) {
	pending := false
	targets, err := b.queryTargets(storage.TargetFilter{Processed: &pending})
	if err != nil {
		return nil, storage.ReadErr("fetch_pending", err)
	}
	return targets, nil
}

func (b *jsonBackend) MarkProcessed(ctx context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	targets, err := b.readTargets()
	if err != nil {
		return storage.WriteErr("mark_processed", err)
	}

	var found *storage.Target
	for _, t := range targets {
		if t.ID == id {
			found = t
			break
		}
	}
	if found == nil {
		return storage.WriteErr("mark_processed", fmt.Errorf("id %d: %w", id, storage.ErrTargetNotFound))
	}
	if found.Processed {
		return nil
	}
	found.Processed = true

	return storage.WriteErr("mark_processed", b.rewriteTargets(targets))
}

// rewriteTargets replaces targets.jsonl via a temp file and rename so a crash
// never leaves a half-written file behind.
func (b *jsonBackend) rewriteTargets(targets []*storage.Target) error {
	tmp, err := os.CreateTemp(b.dir, targetsFile+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, t := range targets {
		if err := enc.Encode(t); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(b.dir, targetsFile))
}

func (b *jsonBackend) InsertLead(ctx context.Context, lead *storage.Lead) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	lead.ID = b.nextLeadID + 1

	data, err := json.Marshal(lead)
	if err != nil {
		return 0, storage.WriteErr("insert_lead", fmt.Errorf("encode lead data: %w", err))
	}
	if _, err := b.leads.Write(append(data, '\n')); err != nil {
		return 0, storage.WriteErr("insert_lead", err)
	}
	b.nextLeadID = lead.ID
	return lead.ID, nil
}

func (b *jsonBackend) QueryTargets(ctx context.Context, filter storage.TargetFilter) ([]*storage.Target, error) {
	targets, err := b.queryTargets(filter)
	if err != nil {
		return nil, storage.ReadErr("query_targets", err)
	}
	return targets, nil
}

func (b *jsonBackend) queryTargets(filter storage.TargetFilter) ([]*storage.Target, error) {
	b.mu.Lock()
	targets, err := b.readTargets()
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var filtered []*storage.Target
	for _, t := range targets {
		if filter.Processed != nil && t.Processed != *filter.Processed {
			continue
		}
		filtered = append(filtered, t)
	}
	return page(filtered, filter.Limit, filter.Offset), nil
}

func (b *jsonBackend) QueryLeads(ctx context.Context, filter storage.LeadFilter) ([]*storage.Lead, error) {
	b.mu.Lock()
	leads, err := b.readLeads()
	b.mu.Unlock()
	if err != nil {
		return nil, storage.ReadErr("query_leads", err)
	}

	var filtered []*storage.Lead
	for _, l := range leads {
		if filter.TargetID != 0 && l.TargetID != filter.TargetID {
			continue
		}
		if filter.Since != nil && l.CreatedAt.Before(*filter.Since) {
			continue
		}
		filtered = append(filtered, l)
	}
	return page(filtered, filter.Limit, filter.Offset), nil
}

func (b *jsonBackend) readTargets() ([]*storage.Target, error) {
	var targets []*storage.Target
	err := readLines(filepath.Join(b.dir, targetsFile), func(line []byte) error {
		var t storage.Target
		if err := json.Unmarshal(line, &t); err != nil {
			return err
		}
		targets = append(targets, &t)
		return nil
	})
	return targets, err
}

func (b *jsonBackend) readLeads() ([]*storage.Lead, error) {
	var leads []*storage.Lead
	err := readLines(filepath.Join(b.dir, leadsFile), func(line []byte) error {
		var l storage.Lead
		if err := json.Unmarshal(line, &l); err != nil {
			return err
		}
		leads = append(leads, &l)
		return nil
	})
	return leads, err
}

func readLines(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	return scanLines(f, func(n int, line []byte) error {
		if err := fn(line); err != nil {
			return fmt.Errorf("%s line %d: %w", filepath.Base(path), n, err)
		}
		return nil
	})
}

func scanLines(r io.Reader, fn func(int, []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.leads.Close()
}
