package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const jsonMetadataKey = "_market"

// Store manages report IO rooted at one run's output directory.
type Store struct {
	dir string
	now func() time.Time
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for metadata timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewStore builds a store for a run directory.
func NewStore(dir string, opts ...StoreOption) *Store {
	store := &Store{
		dir: dir,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Dir returns the run directory.
func (s *Store) Dir() string {
	return s.dir
}

// Check inspects the report on disk and returns its status and metadata.
func (s *Store) Check(ref Ref) (CheckResult, error) {
	path := ref.Path(s.dir)
	if path == "" {
		err := fmt.Errorf("report: %s path could not be resolved", ref.ID)
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CheckResult{Ref: ref, Path: path, State: StateMissing}, nil
		}
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	if info.IsDir() {
		return invalidResult(ref, path, fmt.Errorf("report: expected file got directory"))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	var meta Metadata
	switch ref.Kind {
	case KindJSON:
		meta, err = parseJSONMetadata(data)
	default:
		meta, _, err = ParseFrontMatter(data)
	}
	if err != nil {
		return invalidResult(ref, path, err)
	}
	if meta.ArtifactID != ref.ID {
		return invalidResult(ref, path, fmt.Errorf("report: metadata id %s does not match %s", meta.ArtifactID, ref.ID))
	}
	return CheckResult{Ref: ref, Path: path, State: StateReady, Metadata: &meta}, nil
}

// Write persists the report contents and metadata based on its kind.
func (s *Store) Write(ref Ref, body []byte, meta Metadata) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	path := ref.Path(s.dir)
	if path == "" {
		return "", fmt.Errorf("report: %s path could not be resolved", ref.ID)
	}
	prepared := meta.WithDefaults(ref, s.now())
	if err := prepared.ValidateFor(ref); err != nil {
		return "", err
	}
	var (
		content []byte
		err     error
	)
	switch ref.Kind {
	case KindJSON:
		content, err = encodeJSON(ref, body, prepared)
	default:
		if body == nil {
			body = []byte{}
		}
		content, err = WriteFrontMatter(prepared, body)
	}
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("report: ensure dir for %s: %w", ref.ID, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", ref.ID, err)
	}
	return path, nil
}

// Body returns a document report's content without its frontmatter.
func (s *Store) Body(ref Ref) ([]byte, error) {
	data, err := os.ReadFile(ref.Path(s.dir))
	if err != nil {
		return nil, err
	}
	if ref.Kind == KindJSON {
		return data, nil
	}
	_, body, err := ParseFrontMatter(data)
	return body, err
}

func encodeJSON(ref Ref, body []byte, meta Metadata) ([]byte, error) {
	if body == nil {
		body = []byte("{}")
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("report: invalid json body for %s: %w", ref.ID, err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload[jsonMetadataKey] = fromMetadata(meta)
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: encode json for %s: %w", ref.ID, err)
	}
	return encoded, nil
}

func invalidResult(ref Ref, path string, err error) (CheckResult, error) {
	return CheckResult{Ref: ref, Path: path, State: StateInvalid, Err: err}, err
}

func parseJSONMetadata(data []byte) (Metadata, error) {
	var payload struct {
		Market *marketMetadata `json:"_market"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return Metadata{}, fmt.Errorf("report: parse json metadata: %w", err)
	}
	if payload.Market == nil {
		return Metadata{}, fmt.Errorf("report: missing %s metadata", jsonMetadataKey)
	}
	meta, err := payload.Market.toMetadata()
	if err != nil {
		return Metadata{}, fmt.Errorf("report: incomplete metadata: %w", err)
	}
	return meta, nil
}
