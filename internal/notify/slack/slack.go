// Package slack sends backlog triage notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/triage"
)

const (
	maxSectionLen = 3000
	maxItemLen    = 120
	httpTimeout   = 10 * time.Second
)

// Notifier posts run summaries to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, NotifyRun is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// NotifyRun posts a summary of a triaged backlog run.
func (n *Notifier) NotifyRun(ctx context.Context, run *triage.Run) error {
	if n.webhookURL == "" || run == nil || run.Report == nil {
		return nil
	}

	body, err := json.Marshal(buildMessage(run))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack notification sent", "run_id", run.ID)
	return nil
}

func buildMessage(run *triage.Run) map[string]any {
	blocks := []map[string]any{
		headerBlock(run),
		fieldsBlock(run),
		{"type": "divider"},
		decisionsBlock(run),
	}
	if len(run.Report.Budget.Alerts) > 0 {
		blocks = append(blocks, alertsBlock(run))
	}
	blocks = append(blocks, contextBlock(run))
	return map[string]any{"blocks": blocks}
}

func headerBlock(run *triage.Run) map[string]any {
	s := run.Report.Summary
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s Backlog triaged: %d items", statusEmoji(run.Report), s.Total),
		},
	}
}

func fieldsBlock(run *triage.Run) map[string]any {
	s := run.Report.Summary
	budget := "balanced"
	if !run.Report.Budget.Balanced {
		budget = strings.Join(run.Report.Budget.OverLimitLevels(), ", ") + " over limit"
	}
	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*New:* %d", s.New)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Duplicates:* %d", s.Duplicates)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Needs clarification:* %d", s.Ambiguous)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Budget:* %s", budget)},
	}
	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func decisionsBlock(run *triage.Run) map[string]any {
	var b strings.Builder
	for _, d := range run.Report.Decisions {
		b.WriteString(decisionLine(d))
		b.WriteByte('\n')
	}
	text := truncate(strings.TrimRight(b.String(), "\n"), maxSectionLen)
	if text == "" {
		text = "_No items._"
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func decisionLine(d triage.Decision) string {
	item := truncate(d.Item, maxItemLen)
	switch d.Kind {
	case triage.KindDuplicate:
		return fmt.Sprintf("• :repeat: %s → _%s_ (%.2f, %s)", item, d.Match.Task.Title, d.Match.Score, d.Match.Recommendation)
	case triage.KindAmbiguous:
		qs := make([]string, 0, len(d.Questions))
		for _, q := range d.Questions {
			qs = append(qs, q.Text)
		}
		return fmt.Sprintf("• :grey_question: %s: %s", item, strings.Join(qs, " "))
	default:
		return fmt.Sprintf("• :new: %s `%s/%s`", item, d.Category, d.Priority)
	}
}

func alertsBlock(run *triage.Run) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": "*Priority alerts*\n" + strings.Join(run.Report.Budget.Alerts, "\n"),
		},
	}
}

func contextBlock(run *triage.Run) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("sift • run %s • %s", run.ID, run.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func statusEmoji(r *triage.Report) string {
	switch {
	case !r.Budget.Balanced:
		return "\U0001f534" // red circle
	case r.Summary.Duplicates > 0 || r.Summary.Ambiguous > 0:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

// truncate shortens s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - len("...")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
