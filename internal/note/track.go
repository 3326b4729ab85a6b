package note

import (
	"fmt"
	"strings"
)

// Kind is the instrument family of a track.
type Kind string

const (
	KindAudio       Kind = "audio"
	KindMIDI        Kind = "midi"
	KindDrum        Kind = "drum"
	KindVocal       Kind = "vocal"
	KindSynthesizer Kind = "synthesizer"
)

// ParseKind accepts a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAudio, KindMIDI, KindDrum, KindVocal, KindSynthesizer:
		return k, nil
	}
	return "", fmt.Errorf("unknown track kind %q", s)
}

const (
	DefaultTrackID    = "main"
	DefaultTrackColor = "#3b82f6"
	DefaultVolume     = 0.8
)

type Track struct {
	ID     string  `yaml:"id" json:"id"`
	Name   string  `yaml:"name" json:"name"`
	Kind   Kind    `yaml:"kind" json:"kind"`
	Color  string  `yaml:"color" json:"color"`
	Volume float64 `yaml:"volume" json:"volume"`
	Muted  bool    `yaml:"muted,omitempty" json:"muted"`
	Solo   bool    `yaml:"solo,omitempty" json:"solo"`
}

// DefaultTrack is the track every new timeline starts with.
func DefaultTrack() Track {
	return Track{
		ID:     DefaultTrackID,
		Name:   "Main",
		Kind:   KindSynthesizer,
		Color:  DefaultTrackColor,
		Volume: DefaultVolume,
	}
}

// Normalize fills empty fields and clamps the volume.
func (t Track) Normalize() Track {
	if t.Name == "" {
		t.Name = t.ID
	}
	if t.Kind == "" {
		t.Kind = KindSynthesizer
	}
	if t.Color == "" {
		t.Color = DefaultTrackColor
	}
	t.Volume = clampUnit(t.Volume)
	return t
}

// TrackPatch is a partial track. Nil fields are left unchanged.
type TrackPatch struct {
	Name   *string
	Kind   *Kind
	Color  *string
	Volume *float64
	Muted  *bool
	Solo   *bool
}

func (t Track) Apply(p TrackPatch) Track {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Kind != nil {
		t.Kind = *p.Kind
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
	if p.Volume != nil {
		t.Volume = *p.Volume
	}
	if p.Muted != nil {
		t.Muted = *p.Muted
	}
	if p.Solo != nil {
		t.Solo = *p.Solo
	}
	return t.Normalize()
}

func clampUnit(v float64) float64 {
	if !(v >= 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
