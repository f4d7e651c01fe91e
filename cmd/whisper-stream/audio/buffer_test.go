package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func seq(from, to int) []float32 {
	out := make([]float32, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, float32(i))
	}
	return out
}

func TestRingBuffer(t *testing.T) {
	tcs := []struct {
		name     string
		capacity int
		writes   [][]float32
		n        int
		expected []float32
	}{
		{
			name:     "empty",
			capacity: 4,
			n:        2,
			expected: []float32{},
		},
		{
			name:     "partial",
			capacity: 8,
			writes:   [][]float32{seq(0, 3)},
			n:        0,
			expected: seq(0, 3),
		},
		{
			name:     "last n",
			capacity: 8,
			writes:   [][]float32{seq(0, 3), seq(3, 6)},
			n:        4,
			expected: seq(2, 6),
		},
		{
			name:     "more than buffered",
			capacity: 8,
			writes:   [][]float32{seq(0, 3)},
			n:        10,
			expected: seq(0, 3),
		},
		{
			name:     "wrap around",
			capacity: 4,
			writes:   [][]float32{seq(0, 3), seq(3, 6)},
			n:        0,
			expected: seq(2, 6),
		},
		{
			name:     "write larger than capacity",
			capacity: 4,
			writes:   [][]float32{seq(0, 10)},
			n:        0,
			expected: seq(6, 10),
		},
		{
			name:     "many small writes",
			capacity: 5,
			writes:   [][]float32{seq(0, 2), seq(2, 4), seq(4, 6), seq(6, 8)},
			n:        3,
			expected: seq(5, 8),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			b := NewRingBuffer(tc.capacity)
			for _, w := range tc.writes {
				b.Write(w)
			}
			require.Equal(t, tc.expected, b.Last(tc.n))
			require.Equal(t, tc.capacity, b.Cap())
		})
	}
}

func TestRingBufferClear(t *testing.T) {
	b := NewRingBuffer(4)
	b.Write(seq(0, 3))
	require.Equal(t, 3, b.Len())

	b.Clear()
	require.Zero(t, b.Len())
	require.Empty(t, b.Last(0))

	b.Write(seq(10, 12))
	require.Equal(t, seq(10, 12), b.Last(0))
}

func TestRingBufferLastIsCopy(t *testing.T) {
	b := NewRingBuffer(4)
	b.Write(seq(0, 4))
	out := b.Last(0)
	out[0] = 100
	require.Equal(t, seq(0, 4), b.Last(0))
}

func TestCaptureConfig(t *testing.T) {
	tcs := []struct {
		name          string
		cfg           CaptureConfig
		expectedError string
	}{
		{
			name:          "invalid device",
			cfg:           CaptureConfig{DeviceID: -2},
			expectedError: "invalid DeviceID: should be -1 or a device index",
		},
		{
			name:          "invalid sample rate",
			cfg:           CaptureConfig{DeviceID: -1, SampleRate: -1},
			expectedError: "invalid SampleRate: should be greater than 0",
		},
		{
			name: "defaults",
			cfg:  CaptureConfig{DeviceID: -1},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			cfg.SetDefaults()
			err := cfg.IsValid()
			if tc.expectedError == "" {
				require.NoError(t, err)
				require.Equal(t, SampleRate, cfg.SampleRate)
				require.Equal(t, defaultFramesPerBuffer, cfg.FramesPerBuffer)
				require.Equal(t, defaultBufferMs, cfg.BufferMs)
			} else {
				require.EqualError(t, err, tc.expectedError)
			}
		})
	}
}
