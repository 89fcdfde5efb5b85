// Package config loads YAML settings and fact files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/reasongraph/pkg/reasongraph/contradiction"
	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/inference"
	"github.com/cognicore/reasongraph/pkg/reasongraph/internalerr"
	"github.com/cognicore/reasongraph/pkg/reasongraph/rules"
)

// Config is the YAML document read by Load.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Detector DetectorConfig `yaml:"detector"`
	Rules    RulesConfig    `yaml:"rules"`
	Store    StoreConfig    `yaml:"store"`
	Graph    GraphConfig    `yaml:"graph"`
}

// EngineConfig mirrors inference.Options.
type EngineConfig struct {
	MaxIterations       int           `yaml:"max_iterations"`
	Timeout             time.Duration `yaml:"timeout"`
	AcceptanceThreshold float64       `yaml:"acceptance_threshold"`
}

// DetectorConfig mirrors contradiction.Options plus the conflict policy.
type DetectorConfig struct {
	Tolerance float64 `yaml:"tolerance"`
	Policy    string  `yaml:"policy"`
}

// RulesConfig selects the rule base.
type RulesConfig struct {
	Builtin bool         `yaml:"builtin"`
	Disable []string     `yaml:"disable"`
	Custom  []RuleConfig `yaml:"custom"`
}

// RuleConfig is one user-defined rule.
type RuleConfig struct {
	ID          string   `yaml:"id"`
	Type        string   `yaml:"type"`
	Premises    []string `yaml:"premises"`
	Conclusion  string   `yaml:"conclusion"`
	Decay       float64  `yaml:"decay"`
	MaxDepth    int      `yaml:"max_depth"`
	Description string   `yaml:"description"`
}

// StoreConfig selects a snapshot backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	Path   string `yaml:"path"`
}

// GraphConfig is a graph fixture: explicit nodes and edges plus fact lines
// in the ParseFacts format.
type GraphConfig struct {
	Nodes     []NodeConfig `yaml:"nodes"`
	Edges     []EdgeConfig `yaml:"edges"`
	Facts     []string     `yaml:"facts"`
	FactsFile string       `yaml:"facts_file"`
}

// NodeConfig declares a node.
type NodeConfig struct {
	ID         int64             `yaml:"id"`
	Label      string            `yaml:"label"`
	Type       string            `yaml:"type"`
	Attributes map[string]string `yaml:"attributes"`
}

// EdgeConfig declares an asserted edge between two node labels.
type EdgeConfig struct {
	Source     string   `yaml:"source"`
	Target     string   `yaml:"target"`
	Relation   string   `yaml:"relation"`
	Confidence *float64 `yaml:"confidence"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			MaxIterations:       inference.DefaultMaxIterations,
			AcceptanceThreshold: inference.DefaultAcceptanceThreshold,
		},
		Detector: DetectorConfig{
			Tolerance: contradiction.DefaultTolerance,
			Policy:    contradiction.PolicyFlag.String(),
		},
		Rules: RulesConfig{Builtin: true},
		Store: StoreConfig{Driver: "memory"},
	}
}

// Load reads a YAML config file. Omitted fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", internalerr.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks ranges and names without building anything.
func (c *Config) Validate() error {
	if c.Engine.MaxIterations < 1 {
		return invalid("engine.max_iterations must be positive, got %d", c.Engine.MaxIterations)
	}
	if c.Engine.Timeout < 0 {
		return invalid("engine.timeout must not be negative")
	}
	if t := c.Engine.AcceptanceThreshold; !(t > 0 && t <= 1) {
		return invalid("engine.acceptance_threshold must be in (0,1], got %v", t)
	}
	if t := c.Detector.Tolerance; !(t > 0 && t <= 1) {
		return invalid("detector.tolerance must be in (0,1], got %v", t)
	}
	if _, err := contradiction.ParsePolicy(c.Detector.Policy); err != nil {
		return invalid("detector.policy: %v", err)
	}
	switch c.Store.Driver {
	case "", "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return invalid("store.path is required for the sqlite driver")
		}
	default:
		return invalid("store.driver %q", c.Store.Driver)
	}
	for i, rc := range c.Rules.Custom {
		if _, err := rc.Rule(); err != nil {
			return invalid("rules.custom[%d]: %v", i, err)
		}
	}
	for i, ec := range c.Graph.Edges {
		if _, err := graph.ParseRelation(ec.Relation); err != nil {
			return invalid("graph.edges[%d]: %v", i, err)
		}
		if ec.Source == "" || ec.Target == "" {
			return invalid("graph.edges[%d]: source and target are required", i)
		}
	}
	return nil
}

// Rule converts the YAML form into a rules.Rule and validates it.
func (rc RuleConfig) Rule() (rules.Rule, error) {
	typ, err := rules.ParseType(rc.Type)
	if err != nil {
		return rules.Rule{}, err
	}
	r := rules.Rule{
		ID:          rc.ID,
		Type:        typ,
		Decay:       rc.Decay,
		MaxDepth:    rc.MaxDepth,
		Description: rc.Description,
	}
	for _, p := range rc.Premises {
		rel, err := graph.ParseRelation(p)
		if err != nil {
			return rules.Rule{}, err
		}
		r.Premises = append(r.Premises, rel)
	}
	if r.Conclusion, err = graph.ParseRelation(rc.Conclusion); err != nil {
		return rules.Rule{}, err
	}
	return r, r.Validate()
}

// RuleBase builds the configured rule base.
func (c *Config) RuleBase() (*rules.Base, error) {
	rb := rules.NewBase()
	if c.Rules.Builtin {
		if err := rb.AddBuiltinRules(); err != nil {
			return nil, err
		}
	}
	for _, rc := range c.Rules.Custom {
		r, err := rc.Rule()
		if err != nil {
			return nil, err
		}
		if err := rb.Add(r); err != nil {
			return nil, err
		}
	}
	for _, id := range c.Rules.Disable {
		if err := rb.SetEnabled(id, false); err != nil {
			return nil, fmt.Errorf("rules.disable: %w", err)
		}
	}
	return rb, nil
}

// EngineOptions returns the inference options. Logger and observer are left
// for the caller.
func (c *Config) EngineOptions() inference.Options {
	return inference.Options{
		MaxIterations:       c.Engine.MaxIterations,
		Timeout:             c.Engine.Timeout,
		AcceptanceThreshold: c.Engine.AcceptanceThreshold,
	}
}

// DetectorOptions returns the detector options and the conflict policy.
func (c *Config) DetectorOptions() (contradiction.Options, contradiction.Policy) {
	p, _ := contradiction.ParsePolicy(c.Detector.Policy)
	return contradiction.Options{Tolerance: c.Detector.Tolerance}, p
}
