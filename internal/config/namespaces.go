package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NamespaceOverride is one namespace's deviation from the process
// defaults, loaded from an optional YAML document (spec §9.3), mirroring
// the teacher's tuning.Load / multiworld per-world YAML documents.
type NamespaceOverride struct {
	ID                     string `yaml:"id"`
	Width                  int    `yaml:"width"`
	Height                 int    `yaml:"height"`
	Goal                   string `yaml:"goal"`
	Epoch                  int64  `yaml:"epoch"`
	VisibilityRadius       int    `yaml:"visibility_radius"`
	ScoringInterval        int64  `yaml:"scoring_interval"`
	ScoringEnabled         *bool  `yaml:"scoring_enabled"`
	EliminateAtOrBelowZero *bool  `yaml:"eliminate_at_or_below_zero"`
}

// NamespacesDoc is the top-level shape of configs/namespaces.yaml.
type NamespacesDoc struct {
	Namespaces []NamespaceOverride `yaml:"namespaces"`
}

// LoadNamespaces reads path if it exists; a missing file is not an error
// (every namespace just uses process defaults), matching the teacher's
// "multi-world config path (if exists, server runs in multi-world mode)"
// treatment of an optional YAML document.
func LoadNamespaces(path string) (map[string]NamespaceOverride, error) {
	out := map[string]NamespaceOverride{}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc NamespacesDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, o := range doc.Namespaces {
		out[o.ID] = o
	}
	return out, nil
}
