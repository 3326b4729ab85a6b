// Package project stores a composition as a YAML bundle: the DSL text plus
// the tempo, grid and track metadata the text does not carry.
package project

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/chordcraft-go/internal/dsl"
	"github.com/cbegin/chordcraft-go/internal/note"
	"github.com/cbegin/chordcraft-go/internal/timeline"
)

const Version = 1

// Extension is the conventional file suffix for bundles.
const Extension = ".chordcraft.yaml"

var ErrUnsupportedVersion = errors.New("unsupported project version")

type Bundle struct {
	Version        int          `yaml:"version"`
	Title          string       `yaml:"title,omitempty"`
	Tempo          float64      `yaml:"tempo"`
	Key            string       `yaml:"key"`
	TimeSignature  string       `yaml:"time_signature"`
	GridResolution int          `yaml:"grid_resolution"`
	Snap           bool         `yaml:"snap"`
	Tracks         []note.Track `yaml:"tracks"`
	DSL            string       `yaml:"dsl"`
}

// FromModel captures the model's current text and metadata.
func FromModel(m *timeline.Model, title string) Bundle {
	return Bundle{
		Version:        Version,
		Title:          title,
		Tempo:          m.Tempo(),
		Key:            m.Key(),
		TimeSignature:  m.TimeSignature(),
		GridResolution: m.GridResolution(),
		Snap:           m.SnapEnabled(),
		Tracks:         m.Tracks(),
		DSL:            m.Text(),
	}
}

// Apply loads the bundle into m. The DSL header is authoritative for tempo,
// key and meter; the bundle copies are informational.
func (b Bundle) Apply(m *timeline.Model) []dsl.Diagnostic {
	return m.Load(b.DSL, b.Tracks, b.GridResolution, b.Snap)
}

func Encode(w io.Writer, b Bundle) error {
	if b.Version == 0 {
		b.Version = Version
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("project: encode: %w", err)
	}
	return enc.Close()
}

func Decode(r io.Reader) (Bundle, error) {
	var b Bundle
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		if errors.Is(err, io.EOF) {
			return Bundle{}, fmt.Errorf("project: decode: empty document")
		}
		return Bundle{}, fmt.Errorf("project: decode: %w", err)
	}
	switch {
	case b.Version == 0:
		b.Version = Version
	case b.Version > Version:
		return Bundle{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b.Version)
	}
	return b, nil
}

func Save(path string, b Bundle) error {
	var buf bytes.Buffer
	if err := Encode(&buf, b); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("project: save: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func Load(path string) (Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return Bundle{}, fmt.Errorf("project: load: %w", err)
	}
	defer f.Close()
	b, err := Decode(f)
	if err != nil {
		return Bundle{}, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}
