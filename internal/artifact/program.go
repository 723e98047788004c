package artifact

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Program is a compiled agent configuration that can be reloaded across runs.
type Program struct {
	Name         string            `json:"name" yaml:"name"`
	Kind         string            `json:"kind" yaml:"kind"`
	Version      string            `json:"version,omitempty" yaml:"version,omitempty"`
	MaxIters     int               `json:"max_iters,omitempty" yaml:"max_iters,omitempty"`
	Instructions string            `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Demos        []Demo            `json:"demos,omitempty" yaml:"demos,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CompiledAt   time.Time         `json:"compiled_at" yaml:"compiled_at"`
}

// Demo is one worked example attached to a program by the optimizer.
type Demo struct {
	Input  string  `json:"input" yaml:"input"`
	Output string  `json:"output" yaml:"output"`
	Score  float64 `json:"score,omitempty" yaml:"score,omitempty"`
}

// Optimized reports whether the program carries optimizer output.
func (p *Program) Optimized() bool {
	return p != nil && (len(p.Demos) > 0 || strings.TrimSpace(p.Instructions) != "")
}

type format int

const (
	formatJSON format = iota
	formatYAML
)

func formatFor(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func encodeProgram(p *Program, path string) ([]byte, error) {
	switch formatFor(path) {
	case formatYAML:
		data, err := yaml.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("artifact: encode yaml program %s: %w", p.Name, err)
		}
		return data, nil
	default:
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("artifact: encode json program %s: %w", p.Name, err)
		}
		return append(data, '\n'), nil
	}
}

func decodeProgram(data []byte, path string) (*Program, error) {
	var program Program
	switch formatFor(path) {
	case formatYAML:
		if err := yaml.Unmarshal(data, &program); err != nil {
			return nil, fmt.Errorf("artifact: decode yaml program %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &program); err != nil {
			return nil, fmt.Errorf("artifact: decode json program %s: %w", path, err)
		}
	}
	return &program, nil
}
