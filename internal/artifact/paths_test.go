package artifact

import (
	"reflect"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"programs/vendor":        "programs/vendor.json",
		"programs/vendor.json":   "programs/vendor.json",
		"programs/vendor.pkl":    "programs/vendor.pkl",
		"programs/vendor.yaml":   "programs/vendor.yaml",
		"programs/vendor.YML":    "programs/vendor.YML",
		"programs/vendor.dspy":   "programs/vendor.dspy.json",
		"programs/vendor.bin":    "programs/vendor.json",
		"programs/vendor.v2.txt": "programs/vendor.v2.json",
	}
	for in, want := range cases {
		if got := CanonicalPath(in); got != want {
			t.Fatalf("CanonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalizeFlagsUnsupportedExtension(t *testing.T) {
	if _, replaced := canonicalize("vendor.bin"); !replaced {
		t.Fatalf("expected .bin to be flagged")
	}
	if _, replaced := canonicalize("vendor.dspy"); replaced {
		t.Fatalf("expected .dspy to be supported")
	}
}

func TestGeneratorsIndependently(t *testing.T) {
	if got := DoubleSuffix("vendor"); got != nil {
		t.Fatalf("DoubleSuffix on bare path = %v", got)
	}
	if got, want := DoubleSuffix("vendor.json"), []string{"vendor.json.json", "vendor.json.pkl"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("DoubleSuffix = %v, want %v", got, want)
	}
	if got, want := Alternates("vendor"), []string{"vendor.json", "vendor.pkl"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Alternates bare = %v, want %v", got, want)
	}
	if got, want := Alternates("vendor.dspy"), []string{"vendor.json", "vendor.pkl", "vendor.dspy.json"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Alternates dspy = %v, want %v", got, want)
	}
	if got := Alternates("vendor.json"); got != nil {
		t.Fatalf("Alternates json = %v", got)
	}
}

func TestCandidatesOrderAndDedup(t *testing.T) {
	cases := map[string][]string{
		"vendor":      {"vendor", "vendor.json", "vendor.pkl"},
		"vendor.json": {"vendor.json", "vendor.json.json", "vendor.json.pkl"},
		"vendor.dspy": {"vendor.dspy", "vendor.dspy.json", "vendor.dspy.pkl", "vendor.json", "vendor.pkl"},
		"vendor.bin":  {"vendor.bin", "vendor.json", "vendor.bin.json", "vendor.bin.pkl"},
	}
	for in, want := range cases {
		if got := Candidates(in); !reflect.DeepEqual(got, want) {
			t.Fatalf("Candidates(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCandidatesCustomGenerators(t *testing.T) {
	got := Candidates("vendor", AsGiven, func(p string) []string { return []string{"", p, p + ".bak"} })
	want := []string{"vendor", "vendor.bak"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Candidates = %v, want %v", got, want)
	}
}

func TestLegacyDuplicate(t *testing.T) {
	if got := legacyDuplicate("a/vendor.json"); got != "a/vendor.json.json" {
		t.Fatalf("legacyDuplicate json = %q", got)
	}
	if got := legacyDuplicate("a/vendor.yaml"); got != "" {
		t.Fatalf("legacyDuplicate yaml = %q", got)
	}
}
