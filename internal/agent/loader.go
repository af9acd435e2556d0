package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// enabledProbe detects whether the "enabled" field was present at all.
// Absent means enabled; only an explicit false disables a record.
type enabledProbe struct {
	Enabled *bool `json:"enabled" yaml:"enabled"`
}

// ParseJSON decodes a JSON array of agent records and normalizes them.
func ParseJSON(data []byte) ([]Agent, error) {
	var agents []Agent
	if err := json.Unmarshal(data, &agents); err != nil {
		return nil, fmt.Errorf("failed to parse agents JSON: %w", err)
	}

	var probes []enabledProbe
	if err := json.Unmarshal(data, &probes); err != nil {
		return nil, fmt.Errorf("failed to parse agents JSON: %w", err)
	}

	applyEnabledDefault(agents, probes)
	return NormalizeAll(agents), nil
}

// ParseYAML decodes a YAML list of agent records and normalizes them.
func ParseYAML(data []byte) ([]Agent, error) {
	var agents []Agent
	if err := yaml.Unmarshal(data, &agents); err != nil {
		return nil, fmt.Errorf("failed to parse agents YAML: %w", err)
	}

	var probes []enabledProbe
	if err := yaml.Unmarshal(data, &probes); err != nil {
		return nil, fmt.Errorf("failed to parse agents YAML: %w", err)
	}

	applyEnabledDefault(agents, probes)
	return NormalizeAll(agents), nil
}

// LoadFile reads agent records from a .json, .yaml or .yml file.
func LoadFile(path string) ([]Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// LoadDir reads every .json, .yaml and .yml file in a directory, in name
// order, and concatenates the records. Non-agent files are skipped.
func LoadDir(dir string) ([]Agent, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents directory: %w", err)
	}

	var agents []Agent
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		loaded, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		agents = append(agents, loaded...)
	}
	return agents, nil
}

func applyEnabledDefault(agents []Agent, probes []enabledProbe) {
	for i := range agents {
		if i < len(probes) && probes[i].Enabled == nil {
			agents[i].Enabled = true
		}
	}
}
