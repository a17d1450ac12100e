package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_DistSet_SortedInsertion(t *testing.T) {
	ds := newDistSet(10)
	ds.AddWithLimit(1, 50)
	ds.AddWithLimit(2, 10)
	ds.AddWithLimit(3, 30)
	require.Equal(t, []uint32{2, 3, 1}, ds.KClosest(3))
}

func Test_DistSet_TieBreakById(t *testing.T) {
	ds := newDistSet(10)
	ds.AddWithLimit(9, 10)
	ds.AddWithLimit(3, 10)
	ds.AddWithLimit(7, 10)
	require.Equal(t, []uint32{3, 7, 9}, ds.KClosest(3))
}

func Test_DistSet_CapacityEviction(t *testing.T) {
	ds := newDistSet(3)
	ds.AddWithLimit(1, 40)
	ds.AddWithLimit(2, 30)
	ds.AddWithLimit(3, 20)
	// Closer than the worst, evicts id 1.
	ds.AddWithLimit(4, 10)
	require.Equal(t, 3, ds.Len())
	require.Equal(t, []uint32{4, 3, 2}, ds.KClosest(3))
	// Further than the worst, discarded.
	ds.AddWithLimit(5, 99)
	require.Equal(t, []uint32{4, 3, 2}, ds.KClosest(3))
}

func Test_DistSet_DuplicateIdsIgnored(t *testing.T) {
	ds := newDistSet(10)
	ds.AddWithLimit(1, 10)
	ds.AddWithLimit(1, 5)
	require.Equal(t, 1, ds.Len())
	require.Equal(t, int64(10), ds.items[0].distance)
}

func Test_DistSet_UnboundedAddAndSort(t *testing.T) {
	ds := newDistSet(0)
	for i := 20; i > 0; i-- {
		ds.Add(uint32(i), int64(i))
	}
	require.Equal(t, 20, ds.Len())
	ds.Sort()
	require.Equal(t, []uint32{1, 2, 3}, ds.KClosest(3))
}

func Test_DistSet_KClosestClamps(t *testing.T) {
	ds := newDistSet(5)
	ds.AddWithLimit(1, 1)
	require.Equal(t, []uint32{1}, ds.KClosest(10))
}
