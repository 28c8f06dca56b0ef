package xmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	m := New[string, int]()

	_, ok := m.Load("a")
	require.False(t, ok)

	m.Store("a", 1)

	v, ok := m.Load("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	actual, loaded := m.LoadOrStore("a", 2)
	require.True(t, loaded)
	require.Equal(t, 1, actual)

	actual, loaded = m.LoadOrStore("b", 2)
	require.False(t, loaded)
	require.Equal(t, 2, actual)

	var keys []string

	m.Range(func(k string, _ int) bool {
		keys = append(keys, k)
		return true
	})
	require.Len(t, keys, 2)

	m.Delete("a")

	_, ok = m.Load("a")
	require.False(t, ok)
}
