// Package report writes the human-readable outputs of a pipeline run. Each
// report has a stable identifier, a kind and a file name inside the run's
// output directory.

package report

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Kind captures the storage shape and serialization format for a report.
type Kind string

const (
	// KindDocument represents a markdown document with YAML frontmatter.
	KindDocument Kind = "document"
	// KindJSON represents a JSON document enriched with a _market metadata block.
	KindJSON Kind = "json"
)

// Ref declares a stable identifier and file name for a report.
type Ref struct {
	ID          string
	Name        string
	Description string
	Kind        Kind
	File        string
}

// Path resolves the report path inside a run directory.
func (r Ref) Path(dir string) string {
	if dir == "" || r.File == "" {
		return ""
	}
	return filepath.Clean(filepath.Join(dir, r.File))
}

// Validate ensures the reference is well-formed.
func (r Ref) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("report: id is required")
	}
	if r.Kind == "" {
		return fmt.Errorf("report: kind is required for %s", r.ID)
	}
	if r.File == "" {
		return fmt.Errorf("report: file name missing for %s", r.ID)
	}
	return nil
}

// Metadata captures provenance stored inside report frontmatter or metadata blocks.
type Metadata struct {
	ArtifactID string
	Stage      string
	Run        string
	Version    string
	Category   string
	Region     string
	CreatedAt  time.Time
	Notes      map[string]string
}

// WithDefaults ensures metadata carries the report ID and timestamps.
func (m Metadata) WithDefaults(ref Ref, now time.Time) Metadata {
	clone := m
	if clone.ArtifactID == "" {
		clone.ArtifactID = ref.ID
	}
	if clone.Version == "" {
		clone.Version = FormatVersion
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now.UTC()
	} else {
		clone.CreatedAt = clone.CreatedAt.UTC()
	}
	return clone
}

// ValidateFor ensures metadata matches the report contract.
func (m Metadata) ValidateFor(ref Ref) error {
	if m.ArtifactID != ref.ID {
		return fmt.Errorf("report: metadata id %s does not match ref %s", m.ArtifactID, ref.ID)
	}
	if m.Run == "" {
		return fmt.Errorf("report: run id is required for %s", ref.ID)
	}
	if m.Version == "" {
		return fmt.Errorf("report: version is required for %s", ref.ID)
	}
	return nil
}

// FormatVersion is stamped on every report written by this package.
const FormatVersion = "1"

// State captures the readiness of a report on disk.
type State string

const (
	StateMissing State = "missing"
	StateReady   State = "ready"
	StateInvalid State = "invalid"
	StateError   State = "error"
)

// CheckResult captures Store.Check results.
type CheckResult struct {
	Ref      Ref
	Path     string
	State    State
	Metadata *Metadata
	Err      error
}

func register(ref Ref) Ref {
	if refs == nil {
		refs = map[string]Ref{}
	}
	refs[ref.ID] = ref
	return ref
}

var refs map[string]Ref

// All returns every registered report reference ordered by file name.
func All() []Ref {
	all := make([]Ref, 0, len(refs))
	for _, ref := range refs {
		all = append(all, ref)
	}
	slices.SortFunc(all, func(a, b Ref) int { return strings.Compare(a.File, b.File) })
	return all
}

// Lookup returns a registered report reference by ID.
func Lookup(id string) (Ref, bool) {
	ref, ok := refs[id]
	return ref, ok
}

func newDocRef(id, name, desc, file string) Ref {
	return Ref{ID: id, Name: name, Description: desc, Kind: KindDocument, File: file}
}

func newJSONRef(id, name, desc, file string) Ref {
	return Ref{ID: id, Name: name, Description: desc, Kind: KindJSON, File: file}
}

// Reports produced for every run.
var (
	VendorDoc   = register(newDocRef("vendor-discovery", "Vendor Discovery", "Vendors found for the category", "01_vendor_discovery.md"))
	VendorJSON  = register(newJSONRef("vendor-list", "Vendor List", "Machine-readable vendor list", "vendors.json"))
	PESTLEDoc   = register(newDocRef("pestle-analysis", "PESTLE Analysis", "Political, economic, social, technological, legal and environmental factors", "02_pestle_analysis.md"))
	PortersDoc  = register(newDocRef("porters-analysis", "Porter's Five Forces", "Competitive forces acting on the category", "03_porters_analysis.md"))
	SWOTDoc     = register(newDocRef("swot-analyses", "SWOT Analyses", "Per-vendor deep dives", "04_swot_analyses.md"))
	RFPDoc      = register(newDocRef("rfp-questions", "RFP Questions", "Synthesized questionnaire", "05_rfp_questions.md"))
	RFPJSON     = register(newJSONRef("rfp-question-set", "RFP Question Set", "Machine-readable questionnaire", "rfp_questions.json"))
	SummaryDoc  = register(newDocRef("run-summary", "Run Summary", "Stage outcomes and timings for the run", "SUMMARY.md"))
	CompleteDoc = register(newDocRef("complete-report", "Complete Analysis Report", "All stage reports combined", "COMPLETE_ANALYSIS_REPORT.md"))
)
