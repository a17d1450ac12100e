package payloadstore_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/semafind/vamanadb/payloadstore"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, backend string) payloadstore.PayloadStore {
	t.Helper()
	var store payloadstore.PayloadStore
	var err error
	switch backend {
	case "mem":
		store, err = payloadstore.Open("")
	case "bbolt":
		store, err = payloadstore.Open(filepath.Join(t.TempDir(), "payload.db"))
	case "badger":
		store, err = payloadstore.OpenBadger(t.TempDir())
	}
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func Test_PutGet(t *testing.T) {
	for _, backend := range []string{"mem", "bbolt", "badger"} {
		t.Run(fmt.Sprintf("backend=%s", backend), func(t *testing.T) {
			store := openStore(t, backend)
			require.NoError(t, store.Put(1, []byte("gandalf")))
			require.NoError(t, store.Put(2, []byte("frodo")))
			// ---------------------------
			payload, ok, err := store.Get(1)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []byte("gandalf"), payload)
			// ---------------------------
			payload, ok, err = store.Get(42)
			require.NoError(t, err)
			require.False(t, ok)
			require.Nil(t, payload)
		})
	}
}

func Test_Overwrite(t *testing.T) {
	for _, backend := range []string{"mem", "bbolt", "badger"} {
		t.Run(fmt.Sprintf("backend=%s", backend), func(t *testing.T) {
			store := openStore(t, backend)
			require.NoError(t, store.Put(1, []byte("before")))
			require.NoError(t, store.Put(1, []byte("after")))
			payload, ok, err := store.Get(1)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []byte("after"), payload)
		})
	}
}

func Test_BoltPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.db")
	store, err := payloadstore.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(7, []byte("samwise")))
	require.NoError(t, store.Close())
	// ---------------------------
	reopened, err := payloadstore.Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	payload, ok, err := reopened.Get(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("samwise"), payload)
}

func Test_MemIsolation(t *testing.T) {
	store := openStore(t, "mem")
	original := []byte("legolas")
	require.NoError(t, store.Put(1, original))
	original[0] = 'x'
	payload, ok, err := store.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("legolas"), payload)
}
