package triage

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Category is a named category and the keywords that select it. Keywords may
// be single words or short phrases.
type Category struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// PriorityLevel is one rung of the ordered priority ladder. The first level is
// the most urgent. Limit is the number of open tasks the level may hold.
type PriorityLevel struct {
	Name  string `yaml:"name" json:"name"`
	Limit int    `yaml:"limit" json:"limit"`
}

// Options is the unvalidated input to NewConfig. Zero values fall back to the
// defaults noted on each field.
type Options struct {
	Categories []Category
	Priorities []PriorityLevel

	// Threshold is the minimum similarity for a duplicate, in (0, 1].
	Threshold float64

	FallbackCategory    string // "other"
	DefaultPriority     string // "P2"
	UrgentPriority      string // "P1"
	DeadlineHorizonDays int    // 7

	// SetWeight and EditWeight tune the scorer. Both zero means 0.6/0.4.
	SetWeight  float64
	EditWeight float64

	// Lexicon overrides individual tables of DefaultLexicon. Nil keeps the defaults.
	Lexicon *Lexicon
}

const (
	DefaultThreshold           = 0.5
	DefaultFallbackCategory    = "other"
	DefaultPriorityName        = "P2"
	DefaultUrgentPriorityName  = "P1"
	DefaultDeadlineHorizonDays = 7
)

// DefaultOptions returns the built-in categories and the P0..P3 ladder.
func DefaultOptions() Options {
	return Options{
		Categories: []Category{
			{Name: "outreach", Keywords: []string{"email", "contact", "reach out", "follow up", "meeting", "call", "intro", "investor"}},
			{Name: "technical", Keywords: []string{"code", "api", "database", "deploy", "fix", "bug", "implement", "server", "test"}},
			{Name: "research", Keywords: []string{"research", "study", "learn", "understand", "investigate", "competitors", "pricing", "market"}},
			{Name: "writing", Keywords: []string{"write", "draft", "document", "blog", "article", "proposal"}},
			{Name: "admin", Keywords: []string{"expense", "invoice", "schedule", "calendar", "organize", "taxes", "renew"}},
			{Name: "social", Keywords: []string{"tweet", "post", "linkedin", "social", "twitter"}},
		},
		Priorities: []PriorityLevel{
			{Name: "P0", Limit: 3},
			{Name: "P1", Limit: 5},
			{Name: "P2", Limit: 10},
			{Name: "P3", Limit: 20},
		},
		Threshold: DefaultThreshold,
	}
}

type compiledCategory struct {
	name     string
	keywords [][]string
}

// Config is a validated, immutable triage configuration. It is safe for
// concurrent use.
type Config struct {
	categories      []compiledCategory
	levels          []PriorityLevel
	threshold       float64
	fallback        string
	defaultPriority string
	urgentPriority  string
	horizonDays     int
	scorer          Scorer
	lex             *Lexicon
	normalizer      *Normalizer
	today           time.Time
}

// NewConfig validates o and compiles it into a Config. Every problem found is
// reported; each is an *InvalidInputError.
func NewConfig(o Options) (*Config, error) {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, invalidField(field, format, args...))
	}

	c := &Config{
		threshold:       o.Threshold,
		fallback:        orDefault(o.FallbackCategory, DefaultFallbackCategory),
		defaultPriority: orDefault(o.DefaultPriority, DefaultPriorityName),
		urgentPriority:  orDefault(o.UrgentPriority, DefaultUrgentPriorityName),
		horizonDays:     o.DeadlineHorizonDays,
		scorer:          Scorer{SetWeight: o.SetWeight, EditWeight: o.EditWeight},
		lex:             DefaultLexicon().merge(o.Lexicon),
	}
	if c.horizonDays == 0 {
		c.horizonDays = DefaultDeadlineHorizonDays
	}
	if o.SetWeight == 0 && o.EditWeight == 0 {
		c.scorer = DefaultScorer
	}
	c.normalizer = NewNormalizer(c.lex)

	if o.Threshold <= 0 || o.Threshold > 1 {
		bad("threshold", "%v is outside (0, 1]", o.Threshold)
	}
	if c.horizonDays < 0 {
		bad("deadline_horizon_days", "%d is negative", c.horizonDays)
	}
	if o.SetWeight < 0 || o.EditWeight < 0 {
		bad("weights", "similarity weights must be non-negative")
	}
	for _, msg := range synonymConflicts(c.lex.Synonyms) {
		bad("lexicon.synonyms", "%s", msg)
	}

	if len(o.Priorities) < 2 {
		bad("priorities", "at least two priority levels are required")
	}
	seen := make(map[string]struct{}, len(o.Priorities))
	for i, p := range o.Priorities {
		name := strings.TrimSpace(p.Name)
		switch {
		case name == "":
			errs = append(errs, &InvalidInputError{Field: "priorities.name", Index: i, Reason: "empty"})
			continue
		case p.Limit < 0:
			errs = append(errs, &InvalidInputError{Field: "priorities.limit", Index: i, Reason: fmt.Sprintf("%d is negative", p.Limit)})
		}
		if _, dup := seen[name]; dup {
			errs = append(errs, &InvalidInputError{Field: "priorities.name", Index: i, Reason: fmt.Sprintf("duplicate level %q", name)})
		}
		seen[name] = struct{}{}
		c.levels = append(c.levels, PriorityLevel{Name: name, Limit: p.Limit})
	}
	if _, ok := seen[c.defaultPriority]; !ok {
		bad("default_priority", "%q is not a configured level", c.defaultPriority)
	}
	if _, ok := seen[c.urgentPriority]; !ok {
		bad("urgent_priority", "%q is not a configured level", c.urgentPriority)
	}
	if len(c.levels) > 0 && c.urgentPriority == c.levels[0].Name {
		bad("urgent_priority", "%q is the top level; it is only assigned on explicit confirmation", c.urgentPriority)
	}

	names := make(map[string]struct{}, len(o.Categories))
	for i, cat := range o.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			errs = append(errs, &InvalidInputError{Field: "categories.name", Index: i, Reason: "empty"})
			continue
		}
		if _, dup := names[name]; dup {
			errs = append(errs, &InvalidInputError{Field: "categories.name", Index: i, Reason: fmt.Sprintf("duplicate category %q", name)})
			continue
		}
		names[name] = struct{}{}
		cc := compiledCategory{name: name}
		for _, kw := range cat.Keywords {
			nt, err := c.normalizer.Normalize(kw)
			if err != nil || nt.Empty() {
				errs = append(errs, &InvalidInputError{Field: "categories.keywords", Index: i, Reason: fmt.Sprintf("keyword %q has no meaningful tokens", kw)})
				continue
			}
			cc.keywords = append(cc.keywords, nt.Tokens)
		}
		c.categories = append(c.categories, cc)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// At returns a copy of c whose deadline checks are relative to today. A zero
// time disables concrete-date checks.
func (c *Config) At(today time.Time) *Config {
	cp := *c
	if !today.IsZero() {
		y, m, d := today.Date()
		today = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	cp.today = today
	return &cp
}

// Threshold returns the duplicate similarity threshold.
func (c *Config) Threshold() float64 { return c.threshold }

// Today returns the reference date set by At.
func (c *Config) Today() time.Time { return c.today }

// FallbackCategory is assigned when no keyword matches.
func (c *Config) FallbackCategory() string { return c.fallback }

// DefaultPriority is the level proposed for items with no urgency signal.
func (c *Config) DefaultPriority() string { return c.defaultPriority }

// UrgentPriority is the level urgency and deadline signals bump an item to.
func (c *Config) UrgentPriority() string { return c.urgentPriority }

// TopPriority is the scarcest level. It is never suggested automatically.
func (c *Config) TopPriority() string { return c.levels[0].Name }

// Levels returns a copy of the priority ladder, most urgent first.
func (c *Config) Levels() []PriorityLevel { return slices.Clone(c.levels) }

// Categories returns the category names in declaration order.
func (c *Config) Categories() []string {
	out := make([]string, 0, len(c.categories))
	for _, cat := range c.categories {
		out = append(out, cat.name)
	}
	return out
}

// HasLevel reports whether name is a configured priority level.
func (c *Config) HasLevel(name string) bool {
	return slices.ContainsFunc(c.levels, func(p PriorityLevel) bool { return p.Name == name })
}

// HasCategory reports whether name is a configured category or the fallback.
func (c *Config) HasCategory(name string) bool {
	if name == c.fallback {
		return true
	}
	return slices.ContainsFunc(c.categories, func(cat compiledCategory) bool { return cat.name == name })
}

// Normalizer returns the normalizer built from the configured lexicon.
func (c *Config) Normalizer() *Normalizer { return c.normalizer }

// Lexicon returns the effective word tables.
func (c *Config) Lexicon() *Lexicon { return c.lex }

// Scorer returns the configured similarity scorer.
func (c *Config) Scorer() Scorer { return c.scorer }

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
