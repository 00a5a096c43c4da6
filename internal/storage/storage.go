package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Target is a unit of lead-generation work. Criteria holds the raw blob as
// stored; use ParseCriteria to get the structured form.
type Target struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Criteria  string    `json:"criteria"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}

// Lead is one discovered candidate record for a target. Data is whatever the
// search provider returned for the item and is not validated here.
type Lead struct {
	ID        int64          `json:"id"`
	TargetID  int64          `json:"target_id"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// TargetFilter allows querying targets.
type TargetFilter struct {
	Processed *bool
	Limit     int
	Offset    int
}

// LeadFilter allows querying leads.
type LeadFilter struct {
	TargetID int64
	Since    *time.Time
	Limit    int
	Offset   int
}

// TargetStore is the read/flag boundary the job runner uses for targets.
type TargetStore interface {
	// FetchPending returns every target with Processed == false, ordered by id.
	FetchPending(ctx context.Context) ([]*Target, error)
	// MarkProcessed flips the processed flag. Calling it on a target that is
	// already processed is a no-op.
	MarkProcessed(ctx context.Context, id int64) error
}

// LeadStore is the write boundary for leads.
type LeadStore interface {
	InsertLead(ctx context.Context, lead *Lead) (int64, error)
}

// Backend is a durable store for both targets and leads.
type Backend interface {
	TargetStore
	LeadStore
	AddTarget(ctx context.Context, t *Target) (int64, error)
	QueryTargets(ctx context.Context, filter TargetFilter) ([]*Target, error)
	QueryLeads(ctx context.Context, filter LeadFilter) ([]*Lead, error)
	Close() error
}

// ErrTargetNotFound is wrapped by MarkProcessed when no row matches the id.
var ErrTargetNotFound = errors.New("target not found")

// ReadError reports a failed read from the backing store.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("store read %s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError reports a failed write to the backing store.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store write %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadErr wraps err as a *ReadError, passing nil through.
func ReadErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ReadError{Op: op, Err: err}
}

// WriteErr wraps err as a *WriteError, passing nil through.
func WriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &WriteError{Op: op, Err: err}
}
