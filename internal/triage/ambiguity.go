package triage

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Ambiguity rule names, in evaluation order.
const (
	RuleTooShort           = "too_short"
	RuleUnresolvedReferent = "unresolved_referent"
	RuleNoAction           = "no_action"
)

const (
	QuestionTooShort = "What exactly needs to happen?"
	QuestionReferent = "Who/what specifically does this refer to?"
	QuestionNoAction = "What action is required?"
)

// minMeaningfulTokens is the token count below which an item is too vague.
const minMeaningfulTokens = 3

var (
	properNounRe = regexp.MustCompile(`^\p{Lu}\p{Ll}+$`)
	detailRe     = regexp.MustCompile(`[^\s@]+@[^\s@]+\.[^\s@]+|(?:^|\s)@\w+|https?://\S+|www\.\S+`)
)

// entry is one item prepared for the heuristics: its raw words with casing
// and its normalized tokens.
type entry struct {
	raw   string
	words []word
	text  NormalizedText
}

// Detector flags items that cannot safely become a task without
// clarification. It is safe for concurrent use.
type Detector struct {
	n        *Normalizer
	pronouns map[string]struct{}
	hedges   map[string]struct{}
	known    map[string]struct{}
	verbs    map[string]struct{}
}

// NewDetector builds a Detector from the lexicon and category keywords of cfg.
func NewDetector(cfg *Config) *Detector {
	lex := cfg.Lexicon()
	d := &Detector{
		n:        cfg.Normalizer(),
		pronouns: wordSet(lex.Pronouns),
		hedges:   wordSet(lex.Hedges),
		known:    wordSet(lex.KnownTerms),
		verbs:    make(map[string]struct{}, len(lex.ActionVerbs)),
	}
	for _, v := range lex.ActionVerbs {
		d.verbs[d.n.foldWord(v)] = struct{}{}
	}
	for _, cat := range cfg.categories {
		for _, kw := range cat.keywords {
			for _, tok := range kw {
				d.known[tok] = struct{}{}
			}
		}
	}
	return d
}

// Detect returns one question per triggered rule, in rule order. An empty
// result means the item is actionable. raw must be valid UTF-8.
func (d *Detector) Detect(raw string, text NormalizedText) []Question {
	if !utf8.ValidString(raw) {
		return []Question{{Rule: RuleTooShort, Text: QuestionTooShort}}
	}
	return d.detect(entry{raw: raw, words: scanWords(raw), text: text})
}

func (d *Detector) detect(e entry) []Question {
	var qs []Question
	if len(e.text.Tokens) < minMeaningfulTokens {
		qs = append(qs, Question{Rule: RuleTooShort, Text: QuestionTooShort})
	}
	if ref, ok := d.unresolvedReferent(e); ok {
		qs = append(qs, Question{Rule: RuleUnresolvedReferent, Text: QuestionReferent, Referent: ref})
	}
	if !d.hasAction(e.text) {
		qs = append(qs, Question{Rule: RuleNoAction, Text: QuestionNoAction})
	}
	return qs
}

// unresolvedReferent reports the word that leaves the item's subject unclear.
// A hedge ("Tom something") always triggers and names the proper noun right
// before it when there is one. A third-person pronoun triggers when the item
// names nobody. A single bare proper noun triggers when nothing else
// identifies it.
func (d *Detector) unresolvedReferent(e entry) (string, bool) {
	var (
		proper  []string
		pronoun string
	)
	for i, w := range e.words {
		folded := d.n.foldWord(w.text)
		if _, ok := d.hedges[folded]; ok {
			if i > 0 && d.properNoun(e.words[i-1]) {
				return e.words[i-1].text, true
			}
			return w.text, true
		}
		if _, ok := d.pronouns[folded]; ok && pronoun == "" {
			pronoun = w.text
		}
		if d.properNoun(w) {
			proper = append(proper, w.text)
		}
	}
	switch {
	case len(proper) == 0 && pronoun != "":
		return pronoun, true
	case len(proper) == 1 && !detailRe.MatchString(e.raw):
		return proper[0], true
	}
	return "", false
}

// properNoun reports whether w looks like a name: Title-case, not at the
// start of a sentence, and not a calendar word or category keyword.
func (d *Detector) properNoun(w word) bool {
	if w.sentenceStart || w.text == "I" || !properNounRe.MatchString(w.text) {
		return false
	}
	folded := d.n.foldWord(w.text)
	_, known := d.known[folded]
	return !known
}

// hasAction reports whether any token, or any part of a hyphenated token
// ("follow-up", "re-deploy"), is an action verb or an inflection of one.
func (d *Detector) hasAction(text NormalizedText) bool {
	for _, tok := range text.Tokens {
		if d.isVerb(tok) {
			return true
		}
		if !strings.Contains(tok, "-") {
			continue
		}
		for part := range strings.SplitSeq(tok, "-") {
			if part != "" && d.isVerb(d.n.foldWord(part)) {
				return true
			}
		}
	}
	return false
}

func (d *Detector) isVerb(tok string) bool {
	for _, stem := range stems(tok) {
		if _, ok := d.verbs[stem]; ok {
			return true
		}
	}
	return false
}

// stems returns tok and the base forms it could be an inflection of.
func stems(tok string) []string {
	out := []string{tok}
	for _, suf := range []string{"ing", "es", "ed", "s"} {
		base, ok := strings.CutSuffix(tok, suf)
		if !ok || utf8.RuneCountInString(base) < 2 {
			continue
		}
		out = append(out, base)
		if suf == "ing" || suf == "ed" {
			out = append(out, base+"e")
			if n := len(base); n >= 2 && base[n-1] == base[n-2] {
				out = append(out, base[:n-1])
			}
		}
	}
	return out
}
