package note

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnforcesInvariants(t *testing.T) {
	tests := []struct {
		name     string
		pitch    int
		start    float64
		duration float64
		velocity float64
		track    string
		want     error
	}{
		{"pitch low", -1, 0, 1, 0.5, "main", ErrPitch},
		{"pitch high", 128, 0, 1, 0.5, "main", ErrPitch},
		{"negative start", 60, -0.1, 1, 0.5, "main", ErrStart},
		{"nan start", 60, math.NaN(), 1, 0.5, "main", ErrStart},
		{"zero duration", 60, 0, 0, 0.5, "main", ErrDuration},
		{"inf duration", 60, 0, math.Inf(1), 0.5, "main", ErrDuration},
		{"velocity high", 60, 0, 1, 1.01, "main", ErrVelocity},
		{"velocity nan", 60, 0, 1, math.NaN(), "main", ErrVelocity},
		{"no track", 60, 0, 1, 0.5, "", ErrTrack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.pitch, tt.start, tt.duration, tt.velocity, tt.track)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	n, err := New(127, 0, 0.001, 0, "main")
	require.NoError(t, err)
	assert.Equal(t, 127, n.Pitch())
	assert.Empty(t, n.ID())
}

func TestApplyKeepsIDAndRevalidates(t *testing.T) {
	n := MustNew(60, 0, 1, 0.8, "main").WithID("n1")

	moved, err := n.Apply(Patch{Start: Float(2), Pitch: Int(64)})
	require.NoError(t, err)
	assert.Equal(t, "n1", moved.ID())
	assert.Equal(t, 2.0, moved.Start())
	assert.Equal(t, 64, moved.Pitch())
	assert.Equal(t, 1.0, moved.Duration())

	same, err := n.Apply(Patch{Duration: Float(-1)})
	assert.ErrorIs(t, err, ErrDuration)
	assert.Equal(t, n, same)
}

func TestSortAndEqualEvents(t *testing.T) {
	a := []Note{
		MustNew(64, 1, 1, 0.8, "main").WithID("x"),
		MustNew(60, 1, 1, 0.8, "main").WithID("y"),
		MustNew(67, 0, 1, 0.8, "main").WithID("z"),
	}
	sorted := Sorted(a)
	assert.Equal(t, []int{67, 60, 64}, []int{sorted[0].Pitch(), sorted[1].Pitch(), sorted[2].Pitch()})

	b := []Note{
		MustNew(60, 1, 1, 0.8, "main").WithID("other"),
		MustNew(67, 0, 1, 0.8, "main"),
		MustNew(64, 1, 1, 0.8, "main"),
	}
	assert.True(t, EqualEvents(a, b))
	b[0] = MustNew(60, 1, 1, 0.7, "main")
	assert.False(t, EqualEvents(a, b))
}

func TestTrackApplyClampsVolume(t *testing.T) {
	tr := DefaultTrack().Apply(TrackPatch{Volume: Float(3), Muted: Bool(true)})
	assert.Equal(t, 1.0, tr.Volume)
	assert.True(t, tr.Muted)

	k, err := ParseKind("Drum")
	require.NoError(t, err)
	assert.Equal(t, KindDrum, k)
	_, err = ParseKind("kazoo")
	assert.Error(t, err)
}
