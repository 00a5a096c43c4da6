// Package pipeline runs one pass of the lead generation job: every pending
// target gets a generated query, a web search, one lead per result, and is
// then marked processed.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/leadgen/internal/attempts"
	"github.com/FranksOps/leadgen/internal/querygen"
	"github.com/FranksOps/leadgen/internal/search"
	"github.com/FranksOps/leadgen/internal/storage"
	"github.com/FranksOps/leadgen/pkg/redact"
	"github.com/google/uuid"
)

// Kind names the step a target failed at.
type Kind string

const (
	KindCriteriaParse   Kind = "CriteriaParseError"
	KindQueryGeneration Kind = "QueryGenerationError"
	KindSearchProvider  Kind = "SearchProviderError"
	KindStoreWrite      Kind = "StoreWriteError"
)

type Status string

const (
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Step names used for metrics.
const (
	StepCriteria = "criteria"
	StepQuery    = "query"
	StepSearch   = "search"
	StepInsert   = "insert"
	StepMark     = "mark"
)

// Recorder receives run metrics. metrics.Prometheus satisfies it.
type Recorder interface {
	RecordTarget(status, kind string)
	ObserveStep(step string, d time.Duration)
	AddLeads(n int)
	ObserveRun(d time.Duration)
}

// Outcome is what happened to one target.
type Outcome struct {
	TargetID int64         `json:"target_id"`
	Name     string        `json:"name"`
	Query    string        `json:"query,omitempty"`
	Leads    int           `json:"leads"`
	Status   Status        `json:"status"`
	Kind     Kind          `json:"kind,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Summary describes one pass.
type Summary struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Attempted     int       `json:"attempted"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	Skipped       int       `json:"skipped"`
	LeadsInserted int       `json:"leads_inserted"`
	Outcomes      []Outcome `json:"outcomes"`
}

// Duration is the wall time of the pass.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// TargetError is a per-target failure tagged with the failing step.
type TargetError struct {
	TargetID int64
	Kind     Kind
	Err      error
}

func (e *TargetError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *TargetError) Unwrap() error { return e.Err }

// Pipeline holds every collaborator of the runner. Targets, Leads, Queries
// and Search are required.
type Pipeline struct {
	Targets     storage.TargetStore
	Leads       storage.LeadStore
	Queries     querygen.Generator
	Search      search.Provider
	SearchLimit int

	// Attempts and MaxAttempts enable skipping targets that failed
	// MaxAttempts times in a row. MaxAttempts 0 means no limit.
	Attempts    attempts.Tracker
	MaxAttempts int

	Metrics Recorder
	Logger  *slog.Logger
	// Secrets are literal values masked out of error strings.
	Secrets []string
}

func (p *Pipeline) validate() error {
	switch {
	case p.Targets == nil:
		return errors.New("pipeline: target store is required")
	case p.Leads == nil:
		return errors.New("pipeline: lead store is required")
	case p.Queries == nil:
		return errors.New("pipeline: query generator is required")
	case p.Search == nil:
		return errors.New("pipeline: search provider is required")
	}
	return nil
}

// Run processes every pending target once, sequentially and in store order.
// A failing target is recorded and left unprocessed; the pass continues.
// Run only returns an error when it cannot start (missing collaborator or the
// pending read failing, as *storage.ReadError) or when ctx is done between
// targets, in which case the partial summary is returned with ctx.Err().
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	sum := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Outcomes:  []Outcome{},
	}
	log := p.logger().With("run_id", sum.RunID)

	defer func() {
		sum.FinishedAt = time.Now().UTC()
		if p.Metrics != nil {
			p.Metrics.ObserveRun(sum.Duration())
		}
	}()

	targets, err := p.Targets.FetchPending(ctx)
	if err != nil {
		var re *storage.ReadError
		if !errors.As(err, &re) {
			err = storage.ReadErr("fetch pending", err)
		}
		log.Error("fetch pending targets failed", "error", p.redact(err))
		return nil, err
	}
	log.Info("run started", "pending", len(targets))

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			log.Warn("run cancelled", "remaining", len(targets)-len(sum.Outcomes), "error", err)
			return sum, err
		}

		out := p.handle(ctx, log.With("target_id", t.ID), t)
		sum.Outcomes = append(sum.Outcomes, out)
		sum.LeadsInserted += out.Leads
		switch out.Status {
		case StatusProcessed:
			sum.Attempted++
			sum.Succeeded++
		case StatusFailed:
			sum.Attempted++
			sum.Failed++
		case StatusSkipped:
			sum.Skipped++
		}
		if p.Metrics != nil {
			p.Metrics.RecordTarget(string(out.Status), string(out.Kind))
		}
	}

	log.Info("run finished",
		"attempted", sum.Attempted,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"leads", sum.LeadsInserted,
	)
	return sum, nil
}

func (p *Pipeline) handle(ctx context.Context, log *slog.Logger, t *storage.Target) Outcome {
	out := Outcome{TargetID: t.ID, Name: t.Name}

	if p.limitReached(ctx, log, t.ID) {
		out.Status = StatusSkipped
		log.Info("target skipped, attempt limit reached", "max_attempts", p.MaxAttempts)
		return out
	}

	start := time.Now()
	err := p.process(ctx, log, t, &out)
	out.Duration = time.Since(start)

	if err != nil {
		var te *TargetError
		if errors.As(err, &te) {
			out.Kind = te.Kind
		}
		out.Status = StatusFailed
		out.Error = p.redact(err)
		log.Warn("target failed", "kind", out.Kind, "leads", out.Leads, "error", out.Error)
		p.trackFailure(ctx, log, t.ID)
		return out
	}

	out.Status = StatusProcessed
	log.Info("target processed", "query", out.Query, "leads", out.Leads, "duration", out.Duration)
	p.trackSuccess(ctx, log, t.ID)
	return out
}

// process runs the steps for one target. The first failing step ends it.
func (p *Pipeline) process(ctx context.Context, log *slog.Logger, t *storage.Target, out *Outcome) error {
	fail := func(kind Kind, err error) error {
		return &TargetError{TargetID: t.ID, Kind: kind, Err: err}
	}

	var criteria storage.Criteria
	err := p.step(StepCriteria, func() error {
		var perr error
		criteria, perr = storage.ParseCriteria(t.Criteria)
		return perr
	})
	if err != nil {
		return fail(KindCriteriaParse, err)
	}

	err = p.step(StepQuery, func() error {
		q, gerr := p.Queries.Generate(ctx, querygen.Input{Target: t, Criteria: criteria})
		if gerr != nil {
			return gerr
		}
		// A blank query never reaches search.
		if strings.TrimSpace(q) == "" {
			return querygen.ErrEmptyQuery
		}
		out.Query = q
		return nil
	})
	if err != nil {
		return fail(KindQueryGeneration, err)
	}
	log.Debug("query generated", "query", out.Query)

	var results []search.Result
	err = p.step(StepSearch, func() error {
		var serr error
		results, serr = p.Search.Search(ctx, out.Query, p.SearchLimit)
		return serr
	})
	if err != nil {
		return fail(KindSearchProvider, err)
	}
	log.Debug("search returned", "provider", p.Search.Name(), "results", len(results))

	for _, r := range results {
		err = p.step(StepInsert, func() error {
			_, ierr := p.Leads.InsertLead(ctx, &storage.Lead{TargetID: t.ID, Data: r.Record()})
			return ierr
		})
		if err != nil {
			return fail(KindStoreWrite, err)
		}
		out.Leads++
		if p.Metrics != nil {
			p.Metrics.AddLeads(1)
		}
	}

	if err := p.step(StepMark, func() error { return p.Targets.MarkProcessed(ctx, t.ID) }); err != nil {
		return fail(KindStoreWrite, err)
	}
	return nil
}

func (p *Pipeline) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if p.Metrics != nil {
		p.Metrics.ObserveStep(name, time.Since(start))
	}
	return err
}

func (p *Pipeline) limitReached(ctx context.Context, log *slog.Logger, id int64) bool {
	if p.Attempts == nil || p.MaxAttempts <= 0 {
		return false
	}
	n, err := p.Attempts.Count(ctx, id)
	if err != nil {
		log.Warn("attempt count unavailable", "error", p.redact(err))
		return false
	}
	return n >= p.MaxAttempts
}

func (p *Pipeline) trackFailure(ctx context.Context, log *slog.Logger, id int64) {
	if p.Attempts == nil {
		return
	}
	n, err := p.Attempts.Fail(ctx, id)
	if err != nil {
		log.Warn("attempt tracking failed", "error", p.redact(err))
		return
	}
	log.Debug("failed attempts", "count", n)
}

func (p *Pipeline) trackSuccess(ctx context.Context, log *slog.Logger, id int64) {
	if p.Attempts == nil {
		return
	}
	if err := p.Attempts.Reset(ctx, id); err != nil {
		log.Warn("attempt reset failed", "error", p.redact(err))
	}
}

func (p *Pipeline) redact(err error) string {
	return redact.Secrets(err.Error(), p.Secrets...)
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
