// Package cfg holds sift's process configuration.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

const maxWorkers = 256

// Triage configures the parts shared by every sift binary: storage, rules
// and the evaluation worker pool.
type Triage struct {
	DatabaseURL   string
	DBMaxConns    int
	DBSlowQueryMs int
	RulesFile     string
	Workers       int
}

// RegisterFlags binds Triage fields to the given FlagSet with defaults inline
func (c *Triage) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.IntVar(&c.DBMaxConns, "db-max-conns", 0, "maximum PostgreSQL pool connections (0 = pgx default)")
	fs.IntVar(&c.DBSlowQueryMs, "db-slow-query-ms", 0, "log successful queries only when slower than this (0 = log all)")
	fs.StringVar(&c.RulesFile, "rules-file", "", "YAML triage rules file (empty = built-in rules)")
	fs.IntVar(&c.Workers, "workers", 0, "parallel item evaluations per triage pass (0 = GOMAXPROCS, max 256)")
}

// Validate checks the Triage fields.
func (c *Triage) Validate() error {
	var errs []error

	if c.DatabaseURL != "" && !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		errs = append(errs, errors.New("invalid DATABASE_URL (must start with postgres:// or postgresql://)"))
	}
	if c.DBMaxConns < 0 || c.DBMaxConns > 1000 {
		errs = append(errs, fmt.Errorf("invalid DB_MAX_CONNS %d (must be 0..1000)", c.DBMaxConns))
	}
	if c.DBSlowQueryMs < 0 {
		errs = append(errs, fmt.Errorf("invalid DB_SLOW_QUERY_MS %d (must be >= 0)", c.DBSlowQueryMs))
	}
	if c.Workers < 0 || c.Workers > maxWorkers {
		errs = append(errs, fmt.Errorf("invalid WORKERS %d (must be 0..%d)", c.Workers, maxWorkers))
	}

	return errors.Join(errs...)
}

// SlowQuery returns the slow-query log threshold.
func (c *Triage) SlowQuery() time.Duration {
	return time.Duration(c.DBSlowQueryMs) * time.Millisecond
}

// Config is the HTTP server's configuration.
type Config struct {
	Triage

	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APITokens             string
	SlackWebhookURL       string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	c.Triage.RegisterFlags(fs)
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APITokens, "api-tokens", "", "comma-separated bearer tokens accepted on /api/v1 (empty = no auth)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for run notifications")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.SlackWebhookURL != "" && !strings.HasPrefix(c.SlackWebhookURL, "https://") {
		errs = append(errs, errors.New("invalid SLACK_WEBHOOK_URL (must be https)"))
	}

	if err := c.Triage.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
