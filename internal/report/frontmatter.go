package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("report: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("report: malformed frontmatter")
)

// ParseFrontMatter extracts the metadata block and body from a document that starts
// with `---` YAML fences.
func ParseFrontMatter(content []byte) (Metadata, []byte, error) {
	if len(content) == 0 {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	normalized := normalizeNewlines(content)
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	rest := normalized[4:]
	parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Metadata{}, nil, ErrMalformedFrontMatter
	}
	var envelope marketEnvelope
	if err := yaml.Unmarshal(parts[0], &envelope); err != nil {
		return Metadata{}, nil, fmt.Errorf("report: parse frontmatter: %w", err)
	}
	meta, err := envelope.Market.toMetadata()
	if err != nil {
		return Metadata{}, nil, err
	}
	return meta, bytes.TrimPrefix(parts[1], []byte("\n")), nil
}

// WriteFrontMatter renders metadata + body with YAML fences.
func WriteFrontMatter(meta Metadata, body []byte) ([]byte, error) {
	if meta.ArtifactID == "" {
		return nil, fmt.Errorf("report: metadata missing artifact id")
	}
	envelope := marketEnvelope{Market: fromMetadata(meta)}
	data, err := yaml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("report: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

type marketEnvelope struct {
	Market marketMetadata `yaml:"market"`
}

// marketMetadata doubles as the _market block of JSON reports.
type marketMetadata struct {
	Artifact string            `yaml:"artifact" json:"artifact"`
	Stage    string            `yaml:"stage,omitempty" json:"stage,omitempty"`
	Run      string            `yaml:"run" json:"run"`
	Version  string            `yaml:"version" json:"version"`
	Category string            `yaml:"category,omitempty" json:"category,omitempty"`
	Region   string            `yaml:"region,omitempty" json:"region,omitempty"`
	Created  string            `yaml:"created" json:"created"`
	Notes    map[string]string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

func (m marketMetadata) toMetadata() (Metadata, error) {
	if m.Artifact == "" || m.Run == "" || m.Version == "" {
		return Metadata{}, ErrMalformedFrontMatter
	}
	created, err := parseTime(m.Created)
	if err != nil {
		return Metadata{}, fmt.Errorf("report: parse created timestamp: %w", err)
	}
	return Metadata{
		ArtifactID: m.Artifact,
		Stage:      m.Stage,
		Run:        m.Run,
		Version:    m.Version,
		Category:   m.Category,
		Region:     m.Region,
		CreatedAt:  created,
		Notes:      cloneNotes(m.Notes),
	}, nil
}

func fromMetadata(meta Metadata) marketMetadata {
	return marketMetadata{
		Artifact: meta.ArtifactID,
		Stage:    meta.Stage,
		Run:      meta.Run,
		Version:  meta.Version,
		Category: meta.Category,
		Region:   meta.Region,
		Created:  meta.CreatedAt.UTC().Format(timeLayout),
		Notes:    cloneNotes(meta.Notes),
	}
}

func cloneNotes(notes map[string]string) map[string]string {
	if len(notes) == 0 {
		return nil
	}
	cloned := make(map[string]string, len(notes))
	for k, v := range notes {
		cloned[k] = v
	}
	return cloned
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func parseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("report: empty created timestamp")
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func normalizeNewlines(content []byte) []byte {
	return bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
}
