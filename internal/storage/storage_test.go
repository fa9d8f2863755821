package storage

import (
	"testing"
	"time"

	"github.com/scanhelper/scanhelper/internal/identity"
	"github.com/scanhelper/scanhelper/internal/solution"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore(t *testing.T) {
	s := New()
	mine := identity.New()
	theirs := identity.New()

	older := solution.New(solution.Options{DeviceID: mine})
	time.Sleep(2 * time.Millisecond)
	newer := solution.New(solution.Options{DeviceID: mine})
	other := solution.New(solution.Options{DeviceID: theirs})
	for _, c := range []*solution.Controller{older, newer, other} {
		s.Set(c)
	}
	assert.Equal(t, 3, s.Len())

	got, ok := s.Get(newer.ID())
	require.True(t, ok)
	assert.Same(t, newer, got)

	list := s.ForDevice(mine)
	require.Len(t, list, 2)
	assert.Same(t, newer, list[0])
	assert.Same(t, older, list[1])

	removed, ok := s.Delete(other.ID())
	require.True(t, ok)
	assert.Same(t, other, removed)
	_, ok = s.Delete(other.ID())
	assert.False(t, ok)

	s.CloseAll()
	assert.Zero(t, s.Len())
}

func TestSessionStore_Prune(t *testing.T) {
	s := New()
	device := identity.New()
	old := solution.New(solution.Options{DeviceID: device})
	time.Sleep(2 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(2 * time.Millisecond)
	fresh := solution.New(solution.Options{DeviceID: device})
	s.Set(old)
	s.Set(fresh)

	pruned := s.Prune(cutoff)
	require.Len(t, pruned, 1)
	assert.Same(t, old, pruned[0])
	_, ok := s.Get(old.ID())
	assert.False(t, ok)
	_, ok = s.Get(fresh.ID())
	assert.True(t, ok)
}
