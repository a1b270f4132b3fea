package triage

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Suggestion is the category and priority proposed for a new item, with the
// signals that produced them.
type Suggestion struct {
	Category string   `json:"category"`
	Priority string   `json:"priority"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Suggester assigns a category by keyword overlap and a priority by urgency
// and deadline signals. It never proposes the top priority level.
type Suggester struct {
	cfg      *Config
	urgency  map[string]struct{}
	deadline map[string]struct{}
}

// NewSuggester builds a Suggester for cfg.
func NewSuggester(cfg *Config) *Suggester {
	lex := cfg.Lexicon()
	return &Suggester{
		cfg:      cfg,
		urgency:  wordSet(lex.UrgencyMarkers),
		deadline: wordSet(lex.DeadlineWords),
	}
}

// Suggest returns the category and priority for raw, whose normalized form
// is text.
func (s *Suggester) Suggest(raw string, text NormalizedText) Suggestion {
	var words []word
	if utf8.ValidString(raw) {
		words = scanWords(raw)
	}
	return s.suggest(entry{raw: raw, words: words, text: text})
}

func (s *Suggester) suggest(e entry) Suggestion {
	var out Suggestion
	out.Category, out.Reasons = s.category(e.text)

	out.Priority = s.cfg.DefaultPriority()
	if reason, ok := s.urgent(e); ok {
		out.Priority = s.cfg.UrgentPriority()
		out.Reasons = append(out.Reasons, reason)
	}
	return out
}

func (s *Suggester) category(text NormalizedText) (string, []string) {
	best, bestHits := s.cfg.FallbackCategory(), 0
	for _, cat := range s.cfg.categories {
		hits := 0
		for _, kw := range cat.keywords {
			hits += countPhrase(text.Tokens, kw)
		}
		if hits > bestHits {
			best, bestHits = cat.name, hits
		}
	}
	if bestHits == 0 {
		return best, []string{"no category keywords matched"}
	}
	return best, []string{fmt.Sprintf("category %s matched %d keyword(s)", best, bestHits)}
}

// urgent reports the first signal that bumps the item to the urgent level.
func (s *Suggester) urgent(e entry) (string, bool) {
	for _, w := range e.words {
		folded := s.cfg.normalizer.foldWord(w.text)
		if _, ok := s.urgency[folded]; ok {
			return fmt.Sprintf("urgency marker %q", folded), true
		}
	}
	if strings.Contains(e.raw, "!") {
		return "exclamation emphasis", true
	}
	for _, w := range e.words {
		folded := s.cfg.normalizer.foldWord(w.text)
		if _, ok := s.deadline[folded]; ok {
			return fmt.Sprintf("deadline %q", folded), true
		}
	}
	if reason, ok := nearDeadline(e.raw, s.cfg.Today(), s.cfg.horizonDays); ok {
		return reason, true
	}
	return "", false
}

// countPhrase counts the non-overlapping occurrences of phrase in tokens.
func countPhrase(tokens, phrase []string) int {
	if len(phrase) == 0 {
		return 0
	}
	n := 0
	for i := 0; i+len(phrase) <= len(tokens); {
		if equalAt(tokens, i, phrase) {
			n++
			i += len(phrase)
			continue
		}
		i++
	}
	return n
}

func equalAt(tokens []string, i int, phrase []string) bool {
	for j, p := range phrase {
		if tokens[i+j] != p {
			return false
		}
	}
	return true
}
