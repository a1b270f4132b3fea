package triage

import (
	"context"
	"fmt"
	"runtime"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sift/internal/triage")

// EngineHooks are optional callbacks fired during a pass. They must be safe
// for concurrent use; OnItem runs on worker goroutines.
type EngineHooks struct {
	OnItem     func(kind Kind)
	OnComplete func(e *CompleteEvent)
}

// CompleteEvent describes a finished pass.
type CompleteEvent struct {
	Items      int
	New        int
	Duplicates int
	Ambiguous  int
	OverLimit  []string
	Duration   float64 // seconds
}

// Engine runs triage passes. It holds no per-pass state and is safe for
// concurrent use.
type Engine struct {
	logger  log.Logger
	hooks   EngineHooks
	workers int
}

// NewEngine returns an Engine that evaluates up to workers items at once.
// workers < 1 uses GOMAXPROCS.
func NewEngine(logger log.Logger, hooks EngineHooks, workers int) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{logger: logger, hooks: hooks, workers: workers}
}

// Triage evaluates items sequentially against tasks. It is the pure form of
// (*Engine).Triage with no logging or hooks.
func Triage(items []string, tasks []ExistingTask, cfg *Config) (*Report, error) {
	return NewEngine(log.Nop(), EngineHooks{}, 1).Triage(context.Background(), items, tasks, cfg)
}

// pass bundles the per-pass collaborators shared by all workers.
type pass struct {
	cfg       *Config
	corpus    *Corpus
	resolver  *Resolver
	detector  *Detector
	suggester *Suggester
}

// Triage validates every input, decides each item in parallel, then computes
// the priority budget over tasks plus the NEW proposals. Decisions are in
// input order and the report is identical for identical inputs. Neither
// items nor tasks are modified.
func (e *Engine) Triage(ctx context.Context, items []string, tasks []ExistingTask, cfg *Config) (*Report, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "triage.pass", trace.WithAttributes(
		attribute.Int("sift.items", len(items)),
		attribute.Int("sift.existing_tasks", len(tasks)),
	))
	defer span.End()

	report, err := e.triage(ctx, items, tasks, cfg, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("sift.new", report.Summary.New),
		attribute.Int("sift.duplicates", report.Summary.Duplicates),
		attribute.Int("sift.ambiguous", report.Summary.Ambiguous),
		attribute.StringSlice("sift.over_limit", report.Budget.OverLimitLevels()),
	)
	return report, nil
}

func (e *Engine) triage(ctx context.Context, items []string, tasks []ExistingTask, cfg *Config, start time.Time) (*Report, error) {
	if cfg == nil {
		return nil, invalidField("config", "missing")
	}
	for i, it := range items {
		if !utf8.ValidString(it) {
			return nil, &InvalidInputError{Field: "items", Index: i, Reason: "not valid UTF-8 text"}
		}
	}
	for i, t := range tasks {
		switch t.Status {
		case StatusTodo, StatusActive, StatusBlocked, StatusDone:
		default:
			return nil, &InvalidInputError{Field: "existing_tasks.status", Index: i, Reason: fmt.Sprintf("unknown status %q", t.Status)}
		}
	}
	corpus, err := NewCorpus(cfg.Normalizer(), tasks, cfg.Lexicon().UrgencyMarkers)
	if err != nil {
		return nil, err
	}

	p := &pass{
		cfg:       cfg,
		corpus:    corpus,
		resolver:  NewResolver(cfg.Scorer(), cfg.Threshold(), cfg.Lexicon().UrgencyMarkers),
		detector:  NewDetector(cfg),
		suggester: NewSuggester(cfg),
	}

	decisions := make([]Decision, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, raw := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			decisions[i] = p.decide(i, raw)
			if e.hooks.OnItem != nil {
				e.hooks.OnItem(decisions[i].Kind)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("triage pass: %w", err)
	}

	report := &Report{
		Decisions: decisions,
		Budget:    ComputeBudget(tasks, decisions, cfg),
		Summary:   summarize(decisions),
	}

	ev := &CompleteEvent{
		Items:      len(items),
		New:        report.Summary.New,
		Duplicates: report.Summary.Duplicates,
		Ambiguous:  report.Summary.Ambiguous,
		OverLimit:  report.Budget.OverLimitLevels(),
		Duration:   time.Since(start).Seconds(),
	}
	e.logger.Info(ctx, "triage pass complete",
		"items", ev.Items,
		"existing_tasks", corpus.Len(),
		"new", ev.New,
		"duplicates", ev.Duplicates,
		"ambiguous", ev.Ambiguous,
		"over_limit", ev.OverLimit,
		"duration", ev.Duration,
	)
	if e.hooks.OnComplete != nil {
		e.hooks.OnComplete(ev)
	}
	return report, nil
}

// decide runs the resolver, then the ambiguity rules, then the suggester.
// The first stage that reaches a verdict wins.
func (p *pass) decide(i int, raw string) Decision {
	words := scanWords(raw)
	en := entry{raw: raw, words: words, text: p.cfg.normalizer.fromWords(words)}

	d := Decision{Index: i, Item: raw}
	if m := p.resolver.Resolve(en.text, p.corpus); m != nil {
		d.Kind = KindDuplicate
		d.Match = m
		d.Category = m.Task.Category
		d.Priority = m.Task.Priority
		d.Reasons = []string{fmt.Sprintf("matches task %s %q (score %.2f, %s)", m.Task.ID, m.Task.Title, m.Score, m.Recommendation)}
		return d
	}
	if qs := p.detector.detect(en); len(qs) > 0 {
		d.Kind = KindAmbiguous
		d.Questions = qs
		return d
	}
	s := p.suggester.suggest(en)
	d.Kind = KindNew
	d.Category = s.Category
	d.Priority = s.Priority
	d.Reasons = s.Reasons
	return d
}
