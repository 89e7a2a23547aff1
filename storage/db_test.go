package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBBasicOperations(t *testing.T) {
	db := NewMemDB()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, db.Put([]byte("k"), []byte("v1")))
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)

	has, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, db.Put([]byte("k"), []byte("v2")))
	got, err = db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got)
	require.Equal(t, 1, db.Len())
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("original")
	require.NoError(t, db.Put([]byte("k"), value))

	value[0] = 'X'
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)
}

func TestLevelDBRoundTrip(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	has, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, has)
}
