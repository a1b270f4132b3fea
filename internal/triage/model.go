package triage

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an existing task.
type Status string

const (
	// StatusTodo means not started
	StatusTodo Status = "todo"

	// StatusActive means currently being worked on
	StatusActive Status = "active"

	// StatusBlocked means waiting on something external
	StatusBlocked Status = "blocked"

	// StatusDone means finished
	StatusDone Status = "done"
)

// ParseStatus accepts the long status names as well as the one-letter codes
// used in task frontmatter (n, s, b, d).
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "todo", "n", "not started", "":
		return StatusTodo, nil
	case "active", "s", "started", "in_progress":
		return StatusActive, nil
	case "blocked", "b":
		return StatusBlocked, nil
	case "done", "d":
		return StatusDone, nil
	}
	return "", invalidField("status", "unknown task status %q", s)
}

// Live reports whether the task is still open work (todo or active).
func (s Status) Live() bool {
	return s == StatusTodo || s == StatusActive
}

// ExistingTask is a read-only view of a tracked task supplied by the caller.
type ExistingTask struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Priority  string    `json:"priority"`
	Status    Status    `json:"status"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"` // last status change
}

// LastChanged is UpdatedAt, or CreatedAt for a task never updated.
func (t ExistingTask) LastChanged() time.Time {
	if t.UpdatedAt.IsZero() {
		return t.CreatedAt
	}
	return t.UpdatedAt
}

// Kind is the outcome of triaging one backlog item.
type Kind string

const (
	KindNew       Kind = "NEW"
	KindDuplicate Kind = "DUPLICATE"
	KindAmbiguous Kind = "AMBIGUOUS"
)

// Recommendation is the suggested handling of a duplicate.
type Recommendation string

const (
	RecommendMerge  Recommendation = "merge"
	RecommendReview Recommendation = "review"
)

// Candidate is an existing task whose title scored at or above the threshold.
type Candidate struct {
	TaskID   string  `json:"task_id"`
	Title    string  `json:"title"`
	Category string  `json:"category,omitempty"`
	Status   Status  `json:"status"`
	Score    float64 `json:"score"`
}

// Match is the resolver outcome for a duplicate: the selected task plus the
// ranked candidates it was chosen from.
type Match struct {
	Task           ExistingTask   `json:"task"`
	Score          float64        `json:"score"`
	Recommendation Recommendation `json:"recommendation"`
	Candidates     []Candidate    `json:"candidates"`
}

// Question is a clarifying question attached to an ambiguous item.
type Question struct {
	Rule     string `json:"rule"`
	Text     string `json:"text"`
	Referent string `json:"referent,omitempty"`
}

// Decision is the triage outcome for a single backlog item.
type Decision struct {
	Index     int        `json:"index"`
	Item      string     `json:"item"`
	Kind      Kind       `json:"kind"`
	Match     *Match     `json:"match,omitempty"`
	Category  string     `json:"category,omitempty"`
	Priority  string     `json:"priority,omitempty"`
	Reasons   []string   `json:"reasons,omitempty"`
	Questions []Question `json:"questions,omitempty"`
}

// BudgetLine is the priority-budget state of one priority level.
type BudgetLine struct {
	Level     string `json:"level"`
	Limit     int    `json:"limit"`
	Existing  int    `json:"existing"`
	Proposed  int    `json:"proposed"`
	Count     int    `json:"count"`
	Remaining int    `json:"remaining"`
	OverLimit bool   `json:"over_limit"`
}

// Budget is the priority-budget summary over existing and proposed tasks.
type Budget struct {
	Lines      []BudgetLine `json:"lines"`
	Unbudgeted int          `json:"unbudgeted"`
	Alerts     []string     `json:"alerts"`
	Balanced   bool         `json:"balanced"`
}

// Line returns the budget line for a level.
func (b *Budget) Line(level string) (BudgetLine, bool) {
	for _, l := range b.Lines {
		if l.Level == level {
			return l, true
		}
	}
	return BudgetLine{}, false
}

// Summary aggregates decision counts for a pass.
type Summary struct {
	Total           int      `json:"total_items"`
	New             int      `json:"new_tasks"`
	Duplicates      int      `json:"duplicates_found"`
	Ambiguous       int      `json:"needs_clarification"`
	Recommendations []string `json:"recommendations"`
}

// Report is the full result of a triage pass. Decisions are in input order.
type Report struct {
	Decisions []Decision `json:"decisions"`
	Budget    Budget     `json:"budget"`
	Summary   Summary    `json:"summary"`
}
