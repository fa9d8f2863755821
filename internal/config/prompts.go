package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultSubject is the preset used when none is requested.
const DefaultSubject = "math"

// Preset is the system instruction and user prompt sent with a problem image.
type Preset struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Prompts is a set of presets keyed by subject.
type Prompts struct {
	Default string            `yaml:"default"`
	Presets map[string]Preset `yaml:"presets"`
}

// DefaultPrompts returns the built-in math tutor preset.
func DefaultPrompts() *Prompts {
	return &Prompts{
		Default: DefaultSubject,
		Presets: map[string]Preset{
			DefaultSubject: {
				System: "You are a Mathematics tutor. Provide a detailed, step-by-step solution with explanations.",
				User:   "This image contains a math problem. Please analyze and provide a detailed explanation.",
			},
		},
	}
}

// LoadPrompts reads presets from a YAML file of the form
//
//	default: math
//	presets:
//	  math:
//	    system: ...
//	    user: ...
//
// Built-in presets not overridden by the file stay available.
func LoadPrompts(path string) (*Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	var loaded Prompts
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file %s: %w", path, err)
	}

	p := DefaultPrompts()
	for subject, preset := range loaded.Presets {
		if preset.System == "" || preset.User == "" {
			return nil, fmt.Errorf("preset %q needs both system and user prompts", subject)
		}
		p.Presets[subject] = preset
	}
	if loaded.Default != "" {
		if _, ok := p.Presets[loaded.Default]; !ok {
			return nil, fmt.Errorf("default preset %q is not defined", loaded.Default)
		}
		p.Default = loaded.Default
	}
	return p, nil
}

// Get returns the preset for subject, or the default preset when subject is
// empty. The second result is false for unknown subjects.
func (p *Prompts) Get(subject string) (Preset, bool) {
	if subject == "" {
		subject = p.Default
	}
	preset, ok := p.Presets[subject]
	return preset, ok
}

// Subjects lists the preset names in sorted order.
func (p *Prompts) Subjects() []string {
	out := make([]string, 0, len(p.Presets))
	for s := range p.Presets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
