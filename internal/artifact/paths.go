package artifact

import (
	"path/filepath"
	"strings"
)

const (
	extJSON     = ".json"
	extPickle   = ".pkl"
	extDSPy     = ".dspy"
	extDSPyJSON = ".dspy.json"
)

// Generator proposes candidate on-disk paths for a logical path.
type Generator func(path string) []string

// DefaultGenerators is the probe order used by Load.
var DefaultGenerators = []Generator{
	AsGiven,
	Canonical,
	DoubleSuffix,
	Alternates,
}

// CanonicalPath returns the path a program saved under path is written to.
func CanonicalPath(path string) string {
	canonical, _ := canonicalize(path)
	return canonical
}

// canonicalize also reports whether the extension was unrecognized and
// replaced.
func canonicalize(path string) (string, bool) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	switch strings.ToLower(ext) {
	case "":
		return path + extJSON, false
	case extJSON, extPickle, ".yaml", ".yml":
		return path, false
	case extDSPy:
		return base + extDSPyJSON, false
	default:
		return base + extJSON, true
	}
}

// AsGiven probes the path exactly as the caller wrote it.
func AsGiven(path string) []string {
	return []string{path}
}

// Canonical probes the canonical save location.
func Canonical(path string) []string {
	return []string{CanonicalPath(path)}
}

// DoubleSuffix probes files saved with a second extension appended, such as
// vendor.json.json.
func DoubleSuffix(path string) []string {
	if filepath.Ext(path) == "" {
		return nil
	}
	return []string{path + extJSON, path + extPickle}
}

// Alternates probes known sibling extensions for bare and .dspy paths.
func Alternates(path string) []string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	switch strings.ToLower(ext) {
	case "":
		return []string{path + extJSON, path + extPickle}
	case extDSPy:
		return []string{base + extJSON, base + extPickle, base + extDSPyJSON}
	default:
		return nil
	}
}

// Candidates runs each generator in order and returns the de-duplicated
// union, preserving first occurrence.
func Candidates(path string, generators ...Generator) []string {
	if len(generators) == 0 {
		generators = DefaultGenerators
	}
	seen := make(map[string]struct{})
	var out []string
	for _, gen := range generators {
		for _, candidate := range gen(path) {
			if candidate == "" {
				continue
			}
			if _, ok := seen[candidate]; ok {
				continue
			}
			seen[candidate] = struct{}{}
			out = append(out, candidate)
		}
	}
	return out
}

// Entry describes where a logical artifact lives on disk.
type Entry struct {
	Name       string
	Canonical  string
	Candidates []string
}

// legacyDuplicate returns the stale double-suffixed file a save at canonical
// supersedes, or "" when there is none to look for.
func legacyDuplicate(canonical string) string {
	switch strings.ToLower(filepath.Ext(canonical)) {
	case extJSON, extPickle:
		return canonical + extJSON
	default:
		return ""
	}
}
