package triage

import (
	"cmp"
	"math"
	"slices"
)

const (
	// maxCandidates caps the ranked candidates attached to a match.
	maxCandidates = 3

	// mergeScore is the score above which a duplicate is recommended for merging
	// rather than manual review.
	mergeScore = 0.8
)

type corpusEntry struct {
	task  ExistingTask
	title NormalizedText
	order int
}

// Corpus is a read-only snapshot of existing tasks with pre-normalized titles.
type Corpus struct {
	entries []corpusEntry
}

// NewCorpus normalizes every task title once so a pass can share it across
// workers. Tokens in ignore are dropped from each title, the same set the
// Resolver drops from items, so both sides are scored on one view.
func NewCorpus(n *Normalizer, tasks []ExistingTask, ignore []string) (*Corpus, error) {
	drop := wordSet(ignore)
	c := &Corpus{entries: make([]corpusEntry, 0, len(tasks))}
	for i, t := range tasks {
		title, err := n.Normalize(t.Title)
		if err != nil {
			return nil, &InvalidInputError{Field: "existing_tasks.title", Index: i, Reason: "not valid UTF-8 text"}
		}
		c.entries = append(c.entries, corpusEntry{task: t, title: title.without(drop), order: i})
	}
	return c, nil
}

// Len returns the number of tasks in the corpus.
func (c *Corpus) Len() int { return len(c.entries) }

// Resolver finds the existing task a backlog item duplicates.
type Resolver struct {
	scorer    Scorer
	threshold float64
	ignore    map[string]struct{}
}

// NewResolver returns a Resolver. Tokens in ignore (urgency markers) are
// removed from the item before scoring.
func NewResolver(scorer Scorer, threshold float64, ignore []string) *Resolver {
	return &Resolver{scorer: scorer, threshold: threshold, ignore: wordSet(ignore)}
}

type scored struct {
	entry *corpusEntry
	score float64
	key   int64 // score on a 1e-9 grid so near-equal floats tie
}

// Resolve returns the best match scoring at or above the threshold, or nil.
// Ties prefer live tasks, then the most recently created, then corpus order.
func (r *Resolver) Resolve(item NormalizedText, c *Corpus) *Match {
	if c == nil || len(c.entries) == 0 {
		return nil
	}
	view := item.without(r.ignore)

	var hits []scored
	for i := range c.entries {
		e := &c.entries[i]
		s := r.scorer.Score(view, e.title)
		if s < r.threshold {
			continue
		}
		hits = append(hits, scored{entry: e, score: s, key: int64(math.Round(s * 1e9))})
	}
	if len(hits) == 0 {
		return nil
	}

	slices.SortFunc(hits, compareScored)

	best := hits[0]
	m := &Match{
		Task:           best.entry.task,
		Score:          round4(best.score),
		Recommendation: RecommendReview,
	}
	if best.score > mergeScore {
		m.Recommendation = RecommendMerge
	}
	for _, h := range hits[:min(len(hits), maxCandidates)] {
		m.Candidates = append(m.Candidates, Candidate{
			TaskID:   h.entry.task.ID,
			Title:    h.entry.task.Title,
			Category: h.entry.task.Category,
			Status:   h.entry.task.Status,
			Score:    round4(h.score),
		})
	}
	return m
}

func compareScored(a, b scored) int {
	if c := cmp.Compare(b.key, a.key); c != 0 {
		return c
	}
	if al, bl := a.entry.task.Status.Live(), b.entry.task.Status.Live(); al != bl {
		if al {
			return -1
		}
		return 1
	}
	if c := b.entry.task.CreatedAt.Compare(a.entry.task.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.entry.order, b.entry.order)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
