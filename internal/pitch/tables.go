package pitch

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTablesYAML []byte

type Entry struct {
	Score int    `yaml:"score"`
	Label string `yaml:"label"`
}

type StageEntry struct {
	Score    int      `yaml:"score"`
	Label    string   `yaml:"label"`
	Risk     string   `yaml:"risk"`
	Severity Severity `yaml:"severity"`
}

type Weights struct {
	Team       float64 `yaml:"team"`
	Market     float64 `yaml:"market"`
	Tokenomics float64 `yaml:"tokenomics"`
	Traction   float64 `yaml:"traction"`
	Docs       float64 `yaml:"docs"`
}

func (w Weights) Sum() float64 {
	return w.Team + w.Market + w.Tokenomics + w.Traction + w.Docs
}

type Thresholds struct {
	High   int `yaml:"high"`
	Normal int `yaml:"normal"`
}

// Tables holds the lookup data that drives the heuristic.
type Tables struct {
	Weights    Weights               `yaml:"weights"`
	Thresholds Thresholds            `yaml:"thresholds"`
	Fallback   Fallback              `yaml:"fallback"`
	Sectors    map[string]Entry      `yaml:"sectors"`
	Stages     map[string]StageEntry `yaml:"stages"`
	Chains     map[string]Entry      `yaml:"chains"`
}

type Fallback struct {
	Sector string `yaml:"sector"`
	Stage  string `yaml:"stage"`
	Chain  string `yaml:"chain"`
}

// DefaultTables returns the embedded tables. It panics only if the embedded
// file is broken, which the package tests guard against.
func DefaultTables() Tables {
	tables, err := ParseTables(defaultTablesYAML)
	if err != nil {
		panic(fmt.Sprintf("pitch: embedded tables invalid: %v", err))
	}
	return tables
}

// LoadTables reads tables from path, or returns the embedded defaults when
// path is empty.
func LoadTables(path string) (Tables, error) {
	if strings.TrimSpace(path) == "" {
		return ParseTables(defaultTablesYAML)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read pitch tables: %w", err)
	}
	return ParseTables(raw)
}

func ParseTables(raw []byte) (Tables, error) {
	var tables Tables
	if err := yaml.Unmarshal(raw, &tables); err != nil {
		return Tables{}, fmt.Errorf("parse pitch tables: %w", err)
	}
	if err := tables.validate(); err != nil {
		return Tables{}, err
	}
	return tables, nil
}

func (t Tables) validate() error {
	if math.Abs(t.Weights.Sum()-1) > 1e-6 {
		return fmt.Errorf("pitch tables: weights sum to %.4f, want 1", t.Weights.Sum())
	}
	if t.Thresholds.High <= t.Thresholds.Normal {
		return fmt.Errorf("pitch tables: high threshold %d must exceed normal %d", t.Thresholds.High, t.Thresholds.Normal)
	}
	if _, ok := t.Sectors[t.Fallback.Sector]; !ok {
		return fmt.Errorf("pitch tables: fallback sector %q missing", t.Fallback.Sector)
	}
	if _, ok := t.Stages[t.Fallback.Stage]; !ok {
		return fmt.Errorf("pitch tables: fallback stage %q missing", t.Fallback.Stage)
	}
	if _, ok := t.Chains[t.Fallback.Chain]; !ok {
		return fmt.Errorf("pitch tables: fallback chain %q missing", t.Fallback.Chain)
	}
	for name, stage := range t.Stages {
		switch stage.Severity {
		case SeverityLow, SeverityMedium, SeverityHigh:
		default:
			return fmt.Errorf("pitch tables: stage %q has unknown severity %q", name, stage.Severity)
		}
	}
	return nil
}

func (t Tables) sector(name string) (string, Entry) {
	if key, ok := lookup(t.Sectors, name); ok {
		return key, t.Sectors[key]
	}
	return t.Fallback.Sector, t.Sectors[t.Fallback.Sector]
}

func (t Tables) stage(name string) (string, StageEntry) {
	if key, ok := lookup(t.Stages, name); ok {
		return key, t.Stages[key]
	}
	return t.Fallback.Stage, t.Stages[t.Fallback.Stage]
}

func (t Tables) chain(name string) (string, Entry) {
	if key, ok := lookup(t.Chains, name); ok {
		return key, t.Chains[key]
	}
	return t.Fallback.Chain, t.Chains[t.Fallback.Chain]
}

func lookup[V any](table map[string]V, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if _, ok := table[name]; ok {
		return name, true
	}
	for key := range table {
		if strings.EqualFold(key, name) {
			return key, true
		}
	}
	return "", false
}
