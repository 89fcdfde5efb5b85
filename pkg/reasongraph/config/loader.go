package config

import (
	"fmt"

	"github.com/cognicore/reasongraph/pkg/reasongraph/rules"
)

// Loader loads the config file and any extra facts files.
type Loader struct {
	ConfigPath string
	FactsPaths []string
}

// Components holds everything a Loader produced.
type Components struct {
	Config *Config
	Rules  *rules.Base
	Facts  []Fact // from FactsPaths, in order
}

// Load reads the configured files. Without a ConfigPath the defaults apply.
func (l *Loader) Load() (*Components, error) {
	comp := &Components{}

	if l.ConfigPath != "" {
		cfg, err := Load(l.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		comp.Config = cfg
	} else {
		cfg := Default()
		comp.Config = &cfg
	}

	rb, err := comp.Config.RuleBase()
	if err != nil {
		return nil, fmt.Errorf("build rules: %w", err)
	}
	comp.Rules = rb

	for _, path := range l.FactsPaths {
		facts, err := LoadFacts(path)
		if err != nil {
			return nil, fmt.Errorf("load facts: %w", err)
		}
		comp.Facts = append(comp.Facts, facts...)
	}
	return comp, nil
}
