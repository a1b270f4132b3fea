package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
	"time"
)

// validBase returns a Config with all fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.DatabaseURL != "" || c.RulesFile != "" || c.Workers != 0 {
		t.Errorf("triage defaults = %+v, want zero values", c.Triage)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-database-url", "postgres://sift@localhost/sift",
		"-db-slow-query-ms", "250",
		"-rules-file", "/etc/sift/rules.yaml",
		"-workers", "8",
		"-api-tokens", "a,b",
		"-slack-webhook-url", "https://hooks.slack.com/services/x",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.DatabaseURL != "postgres://sift@localhost/sift" {
		t.Errorf("DatabaseURL = %q", c.DatabaseURL)
	}
	if c.SlowQuery() != 250*time.Millisecond {
		t.Errorf("SlowQuery = %v, want 250ms", c.SlowQuery())
	}
	if c.RulesFile != "/etc/sift/rules.yaml" || c.Workers != 8 {
		t.Errorf("RulesFile/Workers = %q/%d", c.RulesFile, c.Workers)
	}
	if c.APITokens != "a,b" {
		t.Errorf("APITokens = %q, want a,b", c.APITokens)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("overrides should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	with := func(mut func(*Config)) Config {
		c := validBase()
		mut(&c)
		return c
	}

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "defaults are valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name:    "minimum valid values",
			cfg:     Config{DrainSeconds: 1, ShutdownBudgetSeconds: 2, APIPort: 1},
			wantErr: false,
		},
		{
			name:    "maximum valid values",
			cfg:     Config{DrainSeconds: 299, ShutdownBudgetSeconds: 300, APIPort: 65535, Triage: Triage{Workers: 256, DBMaxConns: 1000}},
			wantErr: false,
		},
		// DrainSeconds boundaries
		{
			name:      "drain zero",
			cfg:       with(func(c *Config) { c.DrainSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			cfg:       Config{DrainSeconds: 301, ShutdownBudgetSeconds: 302, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:    "drain at upper bound",
			cfg:     Config{DrainSeconds: 300, ShutdownBudgetSeconds: 300, APIPort: 8080},
			wantErr: true, // budget must be greater than drain
		},
		// ShutdownBudgetSeconds boundaries
		{
			name:      "budget zero",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget above max",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = 301 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		// Cross-field: budget vs drain
		{
			name:      "budget equals drain",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = 60 }),
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:    "budget is drain plus one",
			cfg:     with(func(c *Config) { c.ShutdownBudgetSeconds = 61 }),
			wantErr: false,
		},
		// APIPort boundaries
		{
			name:      "port zero",
			cfg:       with(func(c *Config) { c.APIPort = 0 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			cfg:       with(func(c *Config) { c.APIPort = 65536 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		// Optional URLs
		{
			name:      "mysql database url",
			cfg:       with(func(c *Config) { c.DatabaseURL = "mysql://root@localhost/sift" }),
			wantErr:   true,
			errSubstr: []string{"DATABASE_URL"},
		},
		{
			name:    "postgresql scheme",
			cfg:     with(func(c *Config) { c.DatabaseURL = "postgresql://localhost/sift" }),
			wantErr: false,
		},
		{
			name:      "plain http webhook",
			cfg:       with(func(c *Config) { c.SlackWebhookURL = "http://hooks.slack.com/x" }),
			wantErr:   true,
			errSubstr: []string{"SLACK_WEBHOOK_URL"},
		},
		// Triage pool
		{
			name:      "negative workers",
			cfg:       with(func(c *Config) { c.Workers = -1 }),
			wantErr:   true,
			errSubstr: []string{"WORKERS"},
		},
		{
			name:      "too many workers",
			cfg:       with(func(c *Config) { c.Workers = 257 }),
			wantErr:   true,
			errSubstr: []string{"WORKERS"},
		},
		{
			name:      "negative slow query",
			cfg:       with(func(c *Config) { c.DBSlowQueryMs = -5 }),
			wantErr:   true,
			errSubstr: []string{"DB_SLOW_QUERY_MS"},
		},
		// Error accumulation: all fields invalid
		{
			name: "all fields invalid",
			cfg: Config{
				DrainSeconds: 0, ShutdownBudgetSeconds: 0, APIPort: 0, SlackWebhookURL: "ftp://x",
				Triage: Triage{DatabaseURL: "x", DBMaxConns: -1, DBSlowQueryMs: -1, Workers: -1},
			},
			wantErr: true,
			errSubstr: []string{
				"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "SLACK_WEBHOOK_URL",
				"DATABASE_URL", "DB_MAX_CONNS", "DB_SLOW_QUERY_MS", "WORKERS",
			},
		},
		// Extreme values
		{
			name:      "extreme negative values",
			cfg:       Config{DrainSeconds: math.MinInt32, ShutdownBudgetSeconds: math.MinInt32, APIPort: math.MinInt32},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func TestTriage_ValidateStandalone(t *testing.T) {
	t.Parallel()

	var c Triage
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse([]string{"-workers", "4"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if fs.Lookup("http-port") != nil {
		t.Error("Triage must not register server flags")
	}
}

func FuzzValidate(f *testing.F) {
	// Seeds: defaults, boundaries, extremes
	seeds := []struct {
		drain, budget, port, workers int
	}{
		{60, 90, 8080, 0},
		{1, 2, 1, 1},
		{299, 300, 65535, 256},
		{0, 0, 0, -1},
		{300, 300, 65535, 257},
		{150, 100, 8080, 4},
		{math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.workers)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port, workers int) {
		c := Config{
			DrainSeconds:          drain,
			ShutdownBudgetSeconds: budget,
			APIPort:               port,
			Triage:                Triage{Workers: workers},
		}
		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		crossOK := budget > drain
		workersOK := workers >= 0 && workers <= maxWorkers

		allValid := drainOK && budgetOK && portOK && crossOK && workersOK

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
