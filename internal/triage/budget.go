package triage

import "fmt"

// ComputeBudget counts open existing tasks plus NEW proposals per priority
// level. Done tasks do not consume budget. A level is over its limit once the
// count reaches the limit, since one more task would exceed it.
func ComputeBudget(tasks []ExistingTask, proposed []Decision, cfg *Config) Budget {
	levels := cfg.Levels()
	index := make(map[string]int, len(levels))
	lines := make([]BudgetLine, len(levels))
	for i, l := range levels {
		index[l.Name] = i
		lines[i] = BudgetLine{Level: l.Name, Limit: l.Limit}
	}

	b := Budget{Alerts: []string{}}
	for _, t := range tasks {
		if t.Status == StatusDone {
			continue
		}
		i, ok := index[t.Priority]
		if !ok {
			b.Unbudgeted++
			continue
		}
		lines[i].Existing++
	}
	for _, d := range proposed {
		if d.Kind != KindNew {
			continue
		}
		if i, ok := index[d.Priority]; ok {
			lines[i].Proposed++
		}
	}

	for i := range lines {
		l := &lines[i]
		l.Count = l.Existing + l.Proposed
		l.Remaining = l.Limit - l.Count
		l.OverLimit = l.Count > 0 && l.Count >= l.Limit
		if l.OverLimit {
			b.Alerts = append(b.Alerts, fmt.Sprintf("%s has %d tasks (limit: %d)", l.Level, l.Count, l.Limit))
		}
	}
	b.Lines = lines
	b.Balanced = len(b.Alerts) == 0
	return b
}

// OverLimitLevels returns the names of levels with no headroom left.
func (b *Budget) OverLimitLevels() []string {
	var out []string
	for _, l := range b.Lines {
		if l.OverLimit {
			out = append(out, l.Level)
		}
	}
	return out
}

func summarize(decisions []Decision) Summary {
	s := Summary{Total: len(decisions), Recommendations: []string{}}
	for _, d := range decisions {
		switch d.Kind {
		case KindNew:
			s.New++
		case KindDuplicate:
			s.Duplicates++
		case KindAmbiguous:
			s.Ambiguous++
		}
	}
	if s.Duplicates > 0 {
		s.Recommendations = append(s.Recommendations,
			fmt.Sprintf("Review %d potential duplicates before creating tasks", s.Duplicates))
	}
	if s.Ambiguous > 0 {
		s.Recommendations = append(s.Recommendations,
			fmt.Sprintf("Clarify %d ambiguous items for better task definition", s.Ambiguous))
	}
	if s.New > 0 {
		s.Recommendations = append(s.Recommendations,
			fmt.Sprintf("Ready to create %d new tasks once confirmed", s.New))
	}
	return s
}
