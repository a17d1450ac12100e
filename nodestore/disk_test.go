package nodestore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/semafind/vamanadb/models"
	"github.com/semafind/vamanadb/nodestore"
	"github.com/stretchr/testify/require"
)

func tempDiskStore(t *testing.T, vectorSize uint16, maxNeighbours uint8) (*nodestore.DiskStore, string, string) {
	t.Helper()
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "graph.index")
	freePath := filepath.Join(dir, "graph.free")
	store, err := nodestore.NewDiskStore(vectorSize, maxNeighbours, indexPath, freePath)
	require.NoError(t, err)
	return store, indexPath, freePath
}

func Test_Disk_EmptyStore(t *testing.T) {
	store, indexPath, freePath := tempDiskStore(t, 2, 3)
	ids, err := store.AllIds()
	require.NoError(t, err)
	require.Empty(t, ids)
	require.NoError(t, store.Close())
	// ---------------------------
	// Only the 7 byte header is on disk.
	info, err := os.Stat(indexPath)
	require.NoError(t, err)
	require.Equal(t, int64(7), info.Size())
	// ---------------------------
	reopened, err := nodestore.OpenDiskStore(2, 3, indexPath, freePath)
	require.NoError(t, err)
	ids, err = reopened.AllIds()
	require.NoError(t, err)
	require.Empty(t, ids)
	require.NoError(t, reopened.Close())
}

func Test_Disk_RoundTrip(t *testing.T) {
	store, indexPath, freePath := tempDiskStore(t, 2, 3)
	ids, err := store.Add([][]float32{{1, 2}, {4, 5}, {7, 8}})
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2, 3}, ids)
	require.NoError(t, store.SetNeighbours(1, []uint32{2, 3}))
	require.NoError(t, store.SetNeighbours(2, []uint32{1, 3}))
	require.NoError(t, store.SetNeighbours(3, []uint32{1, 2}))
	require.NoError(t, store.Close())
	// ---------------------------
	// header + 3 slots of (4 + 4*2 + 4*3) bytes
	info, err := os.Stat(indexPath)
	require.NoError(t, err)
	require.Equal(t, int64(7+3*24), info.Size())
	// ---------------------------
	reopened, err := nodestore.OpenDiskStore(2, 3, indexPath, freePath)
	require.NoError(t, err)
	defer reopened.Close()
	allIds, err := reopened.AllIds()
	require.NoError(t, err)
	require.ElementsMatch(t, []uint32{1, 2, 3}, allIds)
	// ---------------------------
	wantVectors := map[uint32][]float32{1: {1, 2}, 2: {4, 5}, 3: {7, 8}}
	wantNeighbours := map[uint32][]uint32{1: {2, 3}, 2: {1, 3}, 3: {1, 2}}
	for id, vector := range wantVectors {
		node, err := reopened.Get(id)
		require.NoError(t, err)
		require.Equal(t, id, node.Id)
		require.Equal(t, vector, node.Vector)
		require.ElementsMatch(t, wantNeighbours[id], node.Neighbours)
	}
}

func Test_Disk_HeaderMismatch(t *testing.T) {
	store, indexPath, freePath := tempDiskStore(t, 2, 3)
	require.NoError(t, store.Close())
	_, err := nodestore.OpenDiskStore(3, 3, indexPath, freePath)
	require.ErrorIs(t, err, nodestore.ErrInvalidInput)
	_, err = nodestore.OpenDiskStore(2, 4, indexPath, freePath)
	require.ErrorIs(t, err, nodestore.ErrInvalidInput)
}

func Test_Disk_GetZeroId(t *testing.T) {
	store, _, _ := tempDiskStore(t, 2, 3)
	defer store.Close()
	_, err := store.Get(0)
	require.ErrorIs(t, err, nodestore.ErrInvalidInput)
}

func Test_Disk_GetUnknown(t *testing.T) {
	store, _, _ := tempDiskStore(t, 2, 3)
	defer store.Close()
	_, err := store.Get(7)
	require.ErrorIs(t, err, nodestore.ErrNotFound)
}

func Test_Disk_NeighbourCap(t *testing.T) {
	store, _, _ := tempDiskStore(t, 2, 3)
	defer store.Close()
	_, err := store.Add([][]float32{{1, 1}, {2, 2}, {3, 3}, {4, 4}, {5, 5}})
	require.NoError(t, err)
	require.NoError(t, store.SetNeighbours(1, []uint32{2, 3, 4}))
	err = store.SetNeighbours(1, []uint32{2, 3, 4, 5})
	require.ErrorIs(t, err, nodestore.ErrInvalidInput)
	node, err := store.Get(1)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint32{2, 3, 4}, node.Neighbours)
}

func Test_Disk_SetNeighboursUnknown(t *testing.T) {
	store, _, _ := tempDiskStore(t, 2, 3)
	defer store.Close()
	err := store.SetNeighbours(1, []uint32{2})
	require.ErrorIs(t, err, nodestore.ErrNotFound)
	err = store.SetNeighbours(0, []uint32{2})
	require.ErrorIs(t, err, nodestore.ErrInvalidInput)
}

func Test_Disk_VectorSizeMismatch(t *testing.T) {
	store, _, _ := tempDiskStore(t, 2, 3)
	defer store.Close()
	_, err := store.Add([][]float32{{1, 2, 3}})
	require.ErrorIs(t, err, nodestore.ErrInvalidInput)
}

func Test_Disk_SetNode(t *testing.T) {
	store, indexPath, freePath := tempDiskStore(t, 2, 3)
	// Writing past the current allocation point extends the store, as the
	// tiered flusher does with memtable entries.
	node := models.Node{Id: 5, Vector: []float32{5, 6}, Neighbours: []uint32{1}}
	require.NoError(t, store.SetNode(node))
	got, err := store.Get(5)
	require.NoError(t, err)
	require.Equal(t, node.Vector, got.Vector)
	require.Equal(t, node.Neighbours, got.Neighbours)
	require.NoError(t, store.Close())
	// ---------------------------
	// nextId survives the reload.
	reopened, err := nodestore.OpenDiskStore(2, 3, indexPath, freePath)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, uint32(6), reopened.NextId())
	// Slots 1..4 were never written, they are empty.
	ids, err := reopened.AllIds()
	require.NoError(t, err)
	require.Equal(t, []uint32{5}, ids)
	_, err = reopened.Get(3)
	require.ErrorIs(t, err, nodestore.ErrNotFound)
}

func Test_Disk_RandomExisting(t *testing.T) {
	store, _, _ := tempDiskStore(t, 2, 3)
	defer store.Close()
	_, err := store.RandomExisting()
	require.ErrorIs(t, err, nodestore.ErrNotFound)
	_, err = store.Add([][]float32{{1, 1}, {2, 2}, {3, 3}})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		node, err := store.RandomExisting()
		require.NoError(t, err)
		require.GreaterOrEqual(t, node.Id, uint32(1))
		require.LessOrEqual(t, node.Id, uint32(3))
	}
}

func Test_Disk_FreeListCreated(t *testing.T) {
	store, _, freePath := tempDiskStore(t, 2, 3)
	defer store.Close()
	info, err := os.Stat(freePath)
	require.NoError(t, err)
	require.Equal(t, int64(0), info.Size())
}
