package chordcraft

import (
	"bytes"
	"encoding/binary"

	intdsl "github.com/cbegin/chordcraft-go/internal/dsl"
	intplay "github.com/cbegin/chordcraft-go/internal/playback"
	intsynth "github.com/cbegin/chordcraft-go/internal/synth"
	inttl "github.com/cbegin/chordcraft-go/internal/timeline"
)

// RenderSnapshot renders what the scheduler would play for snap: muted
// tracks are skipped, solo wins, and volume and track kind are applied.
func RenderSnapshot(snap inttl.Snapshot, sampleRate int, limit float64, effects []string) ([]float32, error) {
	fx, err := intsynth.ParseEffects(sampleRate, effects)
	if err != nil {
		return nil, err
	}
	return intsynth.Render(intplay.Arrange(snap), sampleRate, limit, intsynth.WithEffects(fx)), nil
}

// RenderText parses text and renders it on the default synthesizer voice.
// Diagnostics are returned alongside whatever notes parsed cleanly.
func RenderText(text string, sampleRate int, limit float64) ([]float32, []intdsl.Diagnostic) {
	res := intdsl.Parse(text)
	events := intplay.Schedule(res.Notes, res.Header.Tempo)
	return intsynth.Render(events, sampleRate, limit), res.Diagnostics
}

type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	Format        uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

const wavFormatFloat = 3

// EncodeWAVFloat32LE wraps interleaved float32 samples in a WAVE file.
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := uint32(len(samples) * 4)
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		Format:        wavFormatFloat,
		Channels:      uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * 4),
		BlockAlign:    uint16(channels * 4),
		BitsPerSample: 32,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataSize,
	}
	var buf bytes.Buffer
	buf.Grow(44 + int(dataSize))
	// writes to a bytes.Buffer cannot fail
	_ = binary.Write(&buf, binary.LittleEndian, h)
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
