// Package rules loads triage configuration from YAML.
package rules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/sift/internal/triage"
)

//go:embed default.yaml
var defaultRules []byte

// File is the on-disk rules document. Omitted fields keep the built-in
// defaults; a non-empty list replaces the built-in list wholesale.
type File struct {
	Threshold           *float64               `yaml:"threshold"`
	FallbackCategory    string                 `yaml:"fallback_category"`
	DefaultPriority     string                 `yaml:"default_priority"`
	UrgentPriority      string                 `yaml:"urgent_priority"`
	DeadlineHorizonDays int                    `yaml:"deadline_horizon_days"`
	Weights             *Weights               `yaml:"weights"`
	Priorities          []triage.PriorityLevel `yaml:"priorities"`
	Categories          []triage.Category      `yaml:"categories"`
	Lexicon             *triage.Lexicon        `yaml:"lexicon"`
}

// Weights blends the two similarity measures.
type Weights struct {
	Set  float64 `yaml:"set"`
	Edit float64 `yaml:"edit"`
}

// Options overlays f onto triage.DefaultOptions.
func (f *File) Options() triage.Options {
	o := triage.DefaultOptions()
	if f.Threshold != nil {
		o.Threshold = *f.Threshold
	}
	o.FallbackCategory = f.FallbackCategory
	o.DefaultPriority = f.DefaultPriority
	o.UrgentPriority = f.UrgentPriority
	o.DeadlineHorizonDays = f.DeadlineHorizonDays
	if f.Weights != nil {
		o.SetWeight = f.Weights.Set
		o.EditWeight = f.Weights.Edit
	}
	if len(f.Priorities) > 0 {
		o.Priorities = f.Priorities
	}
	if len(f.Categories) > 0 {
		o.Categories = f.Categories
	}
	o.Lexicon = f.Lexicon
	return o
}

// Parse decodes a rules document and validates it. Unknown keys are
// rejected. An empty document yields the built-in defaults.
func Parse(data []byte) (*triage.Config, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	cfg, err := triage.NewConfig(f.Options())
	if err != nil {
		return nil, fmt.Errorf("validate rules: %w", err)
	}
	return cfg, nil
}

// Load reads and parses the rules file at path.
func Load(path string) (*triage.Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the embedded rules.
func Default() (*triage.Config, error) {
	return Parse(defaultRules)
}

// LoadOrDefault loads path, or the embedded rules when path is empty.
func LoadOrDefault(path string) (*triage.Config, error) {
	if path == "" {
		return Default()
	}
	return Load(path)
}
