package triage

import (
	"fmt"
	"maps"
	"slices"
)

// Lexicon holds the word tables the heuristics run on. All entries are
// lower-case. Tables are data so deployments can swap them without touching
// the rules.
type Lexicon struct {
	StopWords      []string            `yaml:"stop_words"`
	Synonyms       map[string][]string `yaml:"synonyms"` // canonical -> variants
	ActionVerbs    []string            `yaml:"action_verbs"`
	UrgencyMarkers []string            `yaml:"urgency_markers"`
	DeadlineWords  []string            `yaml:"deadline_words"`
	Pronouns       []string            `yaml:"pronouns"` // third-person referents
	Hedges         []string            `yaml:"hedges"`
	KnownTerms     []string            `yaml:"known_terms"` // capitalised words that are not referents; overrides add to the defaults
}

// DefaultLexicon returns a fresh copy of the built-in tables.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		StopWords: []string{
			// articles
			"a", "an", "the",
			// pronouns and determiners
			"i", "me", "my", "mine", "we", "us", "our", "ours", "you", "your", "yours",
			"he", "him", "his", "she", "her", "hers", "it", "its", "they", "them", "their", "theirs",
			"this", "that", "these", "those",
			// prepositions
			"to", "of", "in", "on", "at", "for", "with", "from", "by", "about", "into",
			"onto", "over", "under", "up", "out", "off", "via", "per",
			// conjunctions
			"and", "or", "but",
		},
		Synonyms: map[string][]string{
			"auth":   {"login", "logins", "log-in", "signin", "sign-in", "authentication", "authenticate", "authn"},
			"issue":  {"bug", "bugs", "issues", "error", "errors", "defect", "defects", "problem", "problems"},
			"fix":    {"fixes", "fixed", "fixing"},
			"email":  {"emails", "emailed", "emailing", "e-mail", "mail"},
			"docs":   {"doc", "documentation"},
			"update": {"updates", "updated", "updating"},
			"review": {"reviews", "reviewed", "reviewing"},
		},
		ActionVerbs: []string{
			"add", "analyze", "ask", "book", "build", "buy", "call", "cancel", "check", "clean",
			"compare", "complete", "configure", "contact", "create", "debug", "decide", "deploy",
			"design", "discuss", "document", "draft", "email", "evaluate", "explore", "file",
			"find", "finish", "fix", "follow", "implement", "install", "investigate", "invite",
			"learn", "message", "meet", "migrate", "order", "organize", "pay", "ping", "plan",
			"post", "prepare", "publish", "reach", "read", "refactor", "remove", "renew",
			"research", "reply", "review", "schedule", "send", "set", "share", "sign", "study",
			"submit", "test", "text", "tweet", "update", "upgrade", "write",
		},
		UrgencyMarkers: []string{
			"urgent", "urgently", "asap", "today", "tonight", "immediately", "blocker", "blocking", "critical",
		},
		DeadlineWords: []string{
			"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
			"tomorrow", "tonight", "eod", "eow",
		},
		Pronouns: []string{
			"he", "him", "his", "she", "her", "hers", "they", "them", "their", "theirs",
		},
		Hedges: []string{
			"someone", "somebody", "something", "somewhere", "whoever", "whatshername", "whatshisname",
		},
		KnownTerms: []string{
			"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
			"january", "february", "march", "april", "may", "june", "july", "august",
			"september", "october", "november", "december",
			"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
		},
	}
}

// merge overlays non-empty tables from o onto a copy of l.
func (l *Lexicon) merge(o *Lexicon) *Lexicon {
	out := *l
	if o == nil {
		return &out
	}
	if len(o.StopWords) > 0 {
		out.StopWords = o.StopWords
	}
	if len(o.Synonyms) > 0 {
		out.Synonyms = maps.Clone(o.Synonyms)
	}
	if len(o.ActionVerbs) > 0 {
		out.ActionVerbs = o.ActionVerbs
	}
	if len(o.UrgencyMarkers) > 0 {
		out.UrgencyMarkers = o.UrgencyMarkers
	}
	if len(o.DeadlineWords) > 0 {
		out.DeadlineWords = o.DeadlineWords
	}
	if len(o.Pronouns) > 0 {
		out.Pronouns = o.Pronouns
	}
	if len(o.Hedges) > 0 {
		out.Hedges = o.Hedges
	}
	if len(o.KnownTerms) > 0 {
		out.KnownTerms = append(slices.Clone(l.KnownTerms), o.KnownTerms...)
	}
	return &out
}

// synonymConflicts describes every variant listed under more than one
// canonical term. Canonical terms are visited in sorted order so the report
// is stable.
func synonymConflicts(syn map[string][]string) []string {
	owner := make(map[string]string)
	var out []string
	for _, canon := range slices.Sorted(maps.Keys(syn)) {
		for _, v := range syn[canon] {
			prev, ok := owner[v]
			if ok && prev != canon {
				out = append(out, fmt.Sprintf("variant %q maps to both %q and %q", v, prev, canon))
				continue
			}
			owner[v] = canon
		}
	}
	return out
}

func wordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
