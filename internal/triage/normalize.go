package triage

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizedText is the comparable token view of a string. Token order and
// duplicates are preserved.
type NormalizedText struct {
	Tokens []string `json:"tokens"`
}

// Empty reports whether the text has no tokens.
func (t NormalizedText) Empty() bool { return len(t.Tokens) == 0 }

// Joined rebuilds a single string from the tokens.
func (t NormalizedText) Joined() string { return strings.Join(t.Tokens, " ") }

// set returns the distinct tokens.
func (t NormalizedText) set() map[string]struct{} {
	return wordSet(t.Tokens)
}

// without returns a copy of t with every token in drop removed.
func (t NormalizedText) without(drop map[string]struct{}) NormalizedText {
	out := make([]string, 0, len(t.Tokens))
	for _, tok := range t.Tokens {
		if _, ok := drop[tok]; !ok {
			out = append(out, tok)
		}
	}
	return NormalizedText{Tokens: out}
}

// word is a raw token with its original casing.
type word struct {
	text          string
	sentenceStart bool
}

// Normalizer converts raw text into NormalizedText. It is safe for
// concurrent use.
type Normalizer struct {
	stop  map[string]struct{}
	canon map[string]string
}

// NewNormalizer builds a Normalizer from the stop-word and synonym tables of lex.
func NewNormalizer(lex *Lexicon) *Normalizer {
	if lex == nil {
		lex = DefaultLexicon()
	}
	canon := make(map[string]string)
	for c, variants := range lex.Synonyms {
		for _, v := range variants {
			canon[v] = c
		}
	}
	return &Normalizer{
		stop:  wordSet(lex.StopWords),
		canon: canon,
	}
}

// Normalize case-folds s, strips punctuation (keeping internal hyphens),
// folds synonyms to their canonical term and drops stop words.
func (n *Normalizer) Normalize(s string) (NormalizedText, error) {
	if !utf8.ValidString(s) {
		return NormalizedText{}, invalidField("item", "not valid UTF-8 text")
	}
	return n.fromWords(scanWords(s)), nil
}

func (n *Normalizer) fromWords(words []word) NormalizedText {
	fold := cases.Fold()
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		tok := n.fold(fold, w.text)
		if tok == "" {
			continue
		}
		if _, ok := n.stop[tok]; ok {
			continue
		}
		tokens = append(tokens, tok)
	}
	return NormalizedText{Tokens: tokens}
}

// foldWord returns the case-folded, synonym-folded form of a single word.
func (n *Normalizer) foldWord(s string) string {
	return n.fold(cases.Fold(), s)
}

func (n *Normalizer) fold(c cases.Caser, s string) string {
	tok := c.String(s)
	if canon, ok := n.canon[tok]; ok {
		return canon
	}
	return tok
}

// scanWords splits s into words. Letters and digits form words; a hyphen
// survives only between two word characters; an apostrophe between two
// letters is dropped so contractions stay one word. Every other rune is a
// separator, and . ! ? also start a new sentence.
func scanWords(s string) []word {
	rs := []rune(norm.NFKC.String(s))
	var (
		words     []word
		cur       []rune
		curStart  bool
		nextStart = true
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, word{text: string(cur), sentenceStart: curStart})
			cur = cur[:0]
		}
	}
	for i, r := range rs {
		switch {
		case isWordRune(r):
			if len(cur) == 0 {
				curStart = nextStart
				nextStart = false
			}
			cur = append(cur, r)
		case isHyphen(r):
			if len(cur) > 0 && isWordRune(rs[i-1]) && i+1 < len(rs) && isWordRune(rs[i+1]) {
				cur = append(cur, '-')
				continue
			}
			flush()
		case r == '\'' || r == '’':
			if len(cur) > 0 && unicode.IsLetter(rs[i-1]) && i+1 < len(rs) && unicode.IsLetter(rs[i+1]) {
				continue
			}
			flush()
		default:
			flush()
			if r == '.' || r == '!' || r == '?' {
				nextStart = true
			}
		}
	}
	flush()
	return words
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

func isHyphen(r rune) bool {
	return r == '-' || r == '‐' || r == '‑'
}
