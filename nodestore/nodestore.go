package nodestore

import (
	"errors"

	"github.com/semafind/vamanadb/models"
)

// ---------------------------

// A precondition on arguments was violated, e.g. the reserved id 0, a
// neighbour set over the degree cap or a vector of the wrong size.
var ErrInvalidInput = errors.New("invalid input")

// The given id does not identify a live node.
var ErrNotFound = errors.New("node not found")

// ---------------------------

/* A node store owns the materialised nodes of one graph. The graph layer
 * treats it as a black box, so the in-memory, fixed-record disk and tiered
 * variants are interchangeable. All implementations hand out by-value
 * snapshots, neighbour rewrites are value replacement through SetNeighbours
 * and never mutation of a shared object. */
type NodeStore interface {
	// Appends nodes with empty neighbour sets and returns their assigned ids
	// in batch order. Ids are unique for the store's lifetime and strictly
	// greater than zero.
	Add(vectors [][]float32) ([]uint32, error)
	// Returns a by-value snapshot of the node.
	Get(id uint32) (models.Node, error)
	// Replaces the out-neighbour set of the node.
	SetNeighbours(id uint32, neighbours []uint32) error
	// Returns some currently materialised node to seed an index pass. Which
	// one is implementation defined and need not be uniform, callers treat it
	// as an arbitrary anchor. Fails with ErrNotFound only on an empty store.
	RandomExisting() (models.Node, error)
	// Enumerates every live id, order unspecified.
	AllIds() ([]uint32, error)
	// Snapshot of the whole store.
	AllNodes() (map[uint32]models.Node, error)
	// Identifies the implementation for diagnostics.
	Name() string
}
