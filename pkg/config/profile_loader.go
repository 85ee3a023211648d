package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/campuskeep/campuskeep/pkg/policy"
)

// Profile is an operator-supplied policy profile. Deny rules are CEL
// expressions layered over the built-in rule table; they can only narrow
// access, never widen it.
type Profile struct {
	Name      string               `yaml:"name" json:"name"`
	DenyRules []policy.OverlayRule `yaml:"deny_rules" json:"deny_rules"`
}

// LoadProfile reads and parses a profile YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &profile, nil
}

// Overlay compiles the profile's deny rules. A profile with no rules
// returns nil, meaning no overlay.
func (p *Profile) Overlay() (*policy.Overlay, error) {
	if len(p.DenyRules) == 0 {
		return nil, nil
	}
	return policy.NewOverlay(p.DenyRules)
}
