package pebblestore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorePutGetDelete(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.Has([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put([]byte("k"), []byte("v")))

	ok, err = s.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)

	v, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)

	require.NoError(t, s.Delete([]byte("k")))
	_, err = s.Get([]byte("k"))
	require.Error(t, err)
}

func TestStoreBatchIsAtomic(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	b := s.NewBatch()
	require.NoError(t, b.Put([]byte("a"), []byte("1")))
	require.NoError(t, b.Put([]byte("b"), []byte("2")))
	require.Equal(t, 2, b.Size())
	require.NoError(t, b.Write())

	for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}} {
		v, err := s.Get([]byte(kv[0]))
		require.NoError(t, err)
		require.Equal(t, kv[1], string(v))
	}
}

func TestStoreIteratorOrdering(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put([]byte(k), []byte(k)))
	}

	it, err := s.NewIterator(nil, nil)
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	require.NoError(t, it.Error())
	require.Equal(t, []string{"a", "b", "c"}, got)
}
