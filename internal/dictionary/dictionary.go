// Package dictionary holds the segment-type capability table.
//
// Per-type behavior (terminal flag, config-key schema, default hooks) is
// data, not subclasses: a closed registry keyed by type name returns a small
// capability struct. Deployments may extend the table from configuration.
package dictionary

import (
	"fmt"

	"github.com/spf13/viper"
)

// Capability describes what one segment type can do.
type Capability struct {
	// IsTerminal marks exit-point types. Terminal segments should carry no
	// named transitions; the validator reports violations as warnings.
	IsTerminal bool `json:"is_terminal" mapstructure:"is_terminal"`
	// RequiredKeys are config keys a segment of this type must define.
	RequiredKeys []string `json:"required_keys,omitempty" mapstructure:"required_keys"`
	// OptionalKeys document the remaining recognized config keys.
	OptionalKeys []string `json:"optional_keys,omitempty" mapstructure:"optional_keys"`
	// Hooks are the default lifecycle-hook handlers, overridable per segment.
	Hooks map[string]string `json:"hooks,omitempty" mapstructure:"hooks"`
}

// Dictionary resolves segment type names to capabilities.
type Dictionary struct {
	types map[string]Capability
}

// builtins covers the segment types the runtime interpreter ships with.
var builtins = map[string]Capability{
	"menu": {
		RequiredKeys: []string{"prompt"},
		OptionalKeys: []string{"timeout", "retries", "invalid_prompt"},
		Hooks:        map[string]string{"on_enter": "menu.enter", "on_timeout": "menu.timeout"},
	},
	"prompt": {
		RequiredKeys: []string{"message"},
		OptionalKeys: []string{"interruptible"},
	},
	"input": {
		RequiredKeys: []string{"prompt", "max_digits"},
		OptionalKeys: []string{"timeout", "terminator"},
		Hooks:        map[string]string{"on_input": "input.collect"},
	},
	"language": {
		RequiredKeys: []string{"dictionary"},
		OptionalKeys: []string{"fallback"},
	},
	"transfer": {
		RequiredKeys: []string{"destination"},
		OptionalKeys: []string{"caller_id", "timeout"},
		Hooks:        map[string]string{"on_transfer": "transfer.bridge"},
	},
	"voicemail": {
		IsTerminal:   true,
		RequiredKeys: []string{"mailbox"},
	},
	"hangup": {
		IsTerminal:   true,
		OptionalKeys: []string{"farewell"},
	},
	"disconnect": {
		IsTerminal: true,
	},
}

// Builtin returns a dictionary holding only the built-in segment types.
func Builtin() *Dictionary {
	d := &Dictionary{types: make(map[string]Capability, len(builtins))}
	for name, c := range builtins {
		d.types[name] = c
	}
	return d
}

// FromViper returns the built-in dictionary extended with custom types from
// the "segment_types" configuration section. A custom entry may override a
// built-in of the same name.
func FromViper(v *viper.Viper) (*Dictionary, error) {
	d := Builtin()
	if !v.IsSet("segment_types") {
		return d, nil
	}
	var custom map[string]Capability
	if err := v.UnmarshalKey("segment_types", &custom); err != nil {
		return nil, fmt.Errorf("failed to parse segment_types config: %w", err)
	}
	for name, c := range custom {
		d.types[name] = c
	}
	return d, nil
}

// Register adds or replaces one type.
func (d *Dictionary) Register(name string, c Capability) {
	d.types[name] = c
}

// Resolve looks up the capability of a segment type.
func (d *Dictionary) Resolve(name string) (Capability, bool) {
	c, ok := d.types[name]
	return c, ok
}

// MergeHooks merges the type's default hook handlers with per-segment
// overrides. The instance wins on conflicts.
func (d *Dictionary) MergeHooks(segmentType string, overrides map[string]string) map[string]string {
	merged := make(map[string]string)
	if c, ok := d.types[segmentType]; ok {
		for hook, handler := range c.Hooks {
			merged[hook] = handler
		}
	}
	for hook, handler := range overrides {
		merged[hook] = handler
	}
	return merged
}
