// File: internal/script/script.go

// Package script loads and runs step scripts: YAML documents describing an
// ordered list of dispatchable browser steps.
package script

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stepwright/stepwright/api/schemas"
)

// Script is one parsed step script.
type Script struct {
	Name  string                `yaml:"name"`
	Steps []schemas.StepRequest `yaml:"steps"`
}

// Load reads and validates a step script from disk. Every step must pass
// structural validation before any of them runs.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a step script from raw YAML.
func Parse(data []byte) (*Script, error) {
	var sc Script
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("script has no steps")
	}
	for i := range sc.Steps {
		if err := sc.Steps[i].Validate(); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, sc.Steps[i].Action, err)
		}
	}
	return &sc, nil
}
