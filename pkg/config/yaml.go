package config

import (
	"fmt"

	"github.com/brokerfed/cluster/pkg/hook"
	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes a rules map keyed by hook type name (e.g.
// "SessionCreated") into a RuleSet keyed by hook.Type.
func (rs *RuleSet) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string][]Rule
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("rules: %w", err)
	}

	out := make(RuleSet, len(raw))
	for name, rules := range raw {
		t, ok := hook.ParseType(name)
		if !ok {
			return fmt.Errorf("%w: unknown hook type %q in rules", ErrInvalidConfig, name)
		}
		out[t] = rules
	}
	*rs = out
	return nil
}

// MarshalYAML encodes a RuleSet back to the name-keyed map shape.
func (rs RuleSet) MarshalYAML() (any, error) {
	out := make(map[string][]Rule, len(rs))
	for t, rules := range rs {
		out[t.String()] = rules
	}
	return out, nil
}
