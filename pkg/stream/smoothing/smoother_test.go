package smoothing

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

func intp(v int) *int { return &v }

func TestNewRejectsSmallWindow(t *testing.T) {
	_, err := New(2, TieBreakSmallest)
	assert.True(t, common.IsConfigError(err))

	_, err = New(5, "random")
	assert.True(t, common.IsConfigError(err))

	s, err := New(5, "")
	require.NoError(t, err)
	assert.Equal(t, TieBreakSmallest, s.TieBreak())
	assert.Equal(t, 2, s.Lag())
}

func TestIdenticalLabelsYieldCertainMode(t *testing.T) {
	s, err := New(5, TieBreakSmallest)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		e := s.Push(intp(4))
		if i < 4 {
			assert.False(t, e.Ready)
			assert.Equal(t, DefaultLabel, e.Label)
			assert.Equal(t, i, e.Step)
		} else {
			assert.True(t, e.Ready)
			assert.Equal(t, 4, e.Label)
			assert.Equal(t, 2, e.Step)
		}
	}
	mode, ok := s.Mode()
	assert.True(t, ok)
	assert.Equal(t, 4, mode)
	assert.Equal(t, 5, s.Counted())
}

func TestAlternatingLabelsYieldMajority(t *testing.T) {
	const k = 5
	s, err := New(k, TieBreakSmallest)
	require.NoError(t, err)

	var raw []int
	for i := 0; i < 20; i++ {
		label := 1 + i%2
		raw = append(raw, label)
		e := s.Push(intp(label))
		if !e.Ready {
			assert.Equal(t, DefaultLabel, e.Label)
			continue
		}

		window := raw[len(raw)-k:]
		ones := 0
		for _, l := range window {
			if l == 1 {
				ones++
			}
		}
		want := 2
		if ones > k/2 {
			want = 1
		}
		assert.Equal(t, want, e.Label, "step %d", i)
	}
}

func TestTieBreak(t *testing.T) {
	labels := []*int{intp(3), intp(1), nil, nil}

	smallest, err := New(4, TieBreakSmallest)
	require.NoError(t, err)
	firstSeen, err := New(4, TieBreakFirstSeen)
	require.NoError(t, err)

	var a, b Emission
	for _, l := range labels {
		a = smallest.Push(l)
		b = firstSeen.Push(l)
	}
	assert.True(t, a.Ready)
	assert.Equal(t, 1, a.Label)
	assert.Equal(t, 3, b.Label)
	assert.Equal(t, 2, smallest.Counted())
}

func TestFirstSeenAfterEviction(t *testing.T) {
	s, err := New(3, TieBreakFirstSeen)
	require.NoError(t, err)

	// 5 leaves the window and re-enters after 7
	for _, l := range []int{5, 7, 7, 5, 9} {
		s.Push(intp(l))
	}
	// window is [7, 5, 9]; all tie, 7 is the oldest entry
	mode, ok := s.Mode()
	require.True(t, ok)
	assert.Equal(t, 7, mode)
}

func TestAllPlaceholdersEmitDefault(t *testing.T) {
	s, err := New(3, TieBreakSmallest)
	require.NoError(t, err)

	var e Emission
	for i := 0; i < 4; i++ {
		e = s.Push(nil)
	}
	assert.True(t, e.Ready)
	assert.Equal(t, DefaultLabel, e.Label)
	assert.Equal(t, 0, s.Counted())
}

func TestCountsMatchNonEmptySlots(t *testing.T) {
	for _, tb := range []TieBreak{TieBreakSmallest, TieBreakFirstSeen} {
		t.Run(string(tb), func(t *testing.T) {
			const k = 6
			s, err := New(k, tb)
			require.NoError(t, err)

			rng := rand.New(rand.NewSource(7))
			var history []*int
			for i := 0; i < 200; i++ {
				var l *int
				if rng.Intn(4) != 0 {
					l = intp(rng.Intn(5))
				}
				history = append(history, l)
				s.Push(l)

				start := max(0, len(history)-k)
				want := 0
				for _, h := range history[start:] {
					if h != nil {
						want++
					}
				}
				require.Equal(t, want, s.Counted(), "push %d", i)
			}
		})
	}
}

func TestSmoothAlignment(t *testing.T) {
	out, err := Smooth(Labels(7, 7, 7, 7, 7, 7, 7, 7), 5, TieBreakSmallest)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 7, 7, 7, 7, 7, 7}, out)

	out, err = Smooth(Labels(1, 1, 1), 3, TieBreakSmallest)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1}, out)

	out, err = Smooth(nil, 3, TieBreakSmallest)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSmoothTailTakesFinalMode(t *testing.T) {
	out, err := Smooth(Labels(1, 1, 1, 1, 1, 2, 2, 2), 5, TieBreakSmallest)
	require.NoError(t, err)
	// final window [1, 1, 2, 2, 2] votes 2
	assert.Equal(t, []int{0, 0, 1, 1, 1, 2, 2, 2}, out)

	// short input never fills the ring
	out, err = Smooth(Labels(3, 3), 5, TieBreakSmallest)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, out)
}

func TestFlush(t *testing.T) {
	s, err := New(5, TieBreakSmallest)
	require.NoError(t, err)
	assert.Nil(t, s.Flush())

	for _, l := range []int{4, 4, 4, 9, 9, 9} {
		s.Push(intp(l))
	}
	tail := s.Flush()
	require.Len(t, tail, s.Lag())
	assert.Equal(t, Emission{Step: 4, Label: 9, Ready: true}, tail[0])
	assert.Equal(t, Emission{Step: 5, Label: 9, Ready: true}, tail[1])
	assert.Equal(t, 5, s.Counted())

	lagless, err := New(3, TieBreakSmallest)
	require.NoError(t, err)
	for range 4 {
		lagless.Push(intp(1))
	}
	assert.Nil(t, lagless.Flush())
}

func TestSmoothRemovesFlicker(t *testing.T) {
	raw := Labels(1, 1, 1, 2, 1, 1, 1, 1, 3, 3, 3, 3, 1, 3, 3)
	out, err := Smooth(raw, 3, TieBreakSmallest)
	require.NoError(t, err)

	assert.Len(t, out, len(raw))
	assert.Equal(t, 1, out[3])
	assert.Equal(t, 3, out[13])
}

func TestReset(t *testing.T) {
	s, err := New(3, TieBreakSmallest)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		s.Push(intp(1))
	}
	s.Reset()
	assert.False(t, s.Ready())
	assert.Equal(t, 0, s.Counted())
	e := s.Push(intp(2))
	assert.Equal(t, 0, e.Step)
}
