package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		from Status
		ev   Event
		to   Status
		ok   bool
	}{
		{StatusQueued, EventStart, StatusProcessing, true},
		{StatusProcessing, EventSucceed, StatusSuccess, true},
		{StatusProcessing, EventFail, StatusError, true},

		{StatusQueued, EventSucceed, StatusQueued, false},
		{StatusQueued, EventFail, StatusQueued, false},
		{StatusProcessing, EventStart, StatusProcessing, false},
	}

	for _, tc := range cases {
		next, err := Transition(tc.from, tc.ev)
		if tc.ok {
			require.NoError(t, err)
			assert.Equal(t, tc.to, next)
		} else {
			assert.ErrorIs(t, err, ErrBadTransition)
			assert.Equal(t, tc.from, next, "failed transition must not move state")
		}
	}
}

func TestTransition_TerminalNeverRegresses(t *testing.T) {
	for _, terminal := range []Status{StatusSuccess, StatusError} {
		for _, ev := range []Event{EventStart, EventSucceed, EventFail} {
			next, err := Transition(terminal, ev)
			assert.ErrorIs(t, err, ErrBadTransition)
			assert.Equal(t, terminal, next)
		}
	}
}

func TestStore_AddApplyList(t *testing.T) {
	s := NewStore()
	s.Add("a", "one.jpg", nil)
	s.Add("b", "two.jpg", nil)

	found, err := s.Apply("a", EventStart, nil)
	require.True(t, found)
	require.NoError(t, err)
	found, err = s.Apply("a", EventSucceed, func(r *Record) { r.HasGeo = true })
	require.True(t, found)
	require.NoError(t, err)

	rec, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, rec.Status)
	assert.True(t, rec.HasGeo)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "one.jpg", list[0].FileName)
	assert.Equal(t, "two.jpg", list[1].FileName)
	assert.Equal(t, StatusQueued, list[1].Status)
}

func TestStore_ApplyAfterRemovalIsNoop(t *testing.T) {
	s := NewStore()
	s.Add("a", "one.jpg", nil)
	_, err := s.Apply("a", EventStart, nil)
	require.NoError(t, err)

	s.Remove("a")

	// In-flight work completing into a discarded record stays silent.
	found, err := s.Apply("a", EventSucceed, nil)
	assert.False(t, found)
	assert.NoError(t, err)
	_, ok := s.Get("a")
	assert.False(t, ok)
}

func TestStore_RemoveIdempotent(t *testing.T) {
	s := NewStore()
	released := 0
	s.Add("a", "one.jpg", func() { released++ })

	s.Remove("a")
	s.Remove("a")
	s.Remove("never-existed")

	assert.Equal(t, 1, released, "release fires exactly once")
	assert.Empty(t, s.List())
}

func TestStore_CloseReleasesAll(t *testing.T) {
	s := NewStore()
	released := 0
	s.Add("a", "one.jpg", func() { released++ })
	s.Add("b", "two.jpg", func() { released++ })

	s.Close()
	s.Close()

	assert.Equal(t, 2, released)
	assert.Empty(t, s.List())
}
