package nodestore

import (
	"fmt"
	"slices"

	"github.com/semafind/vamanadb/models"
)

// ---------------------------

// A dense append-only slice of nodes indexed by id - 1. It is not safe for
// concurrent use, callers share it behind their own synchronisation.
type InMemStore struct {
	vectorSize    int
	maxNeighbours int
	nodes         []models.Node
}

func NewInMemStore(vectorSize int, maxNeighbours int) *InMemStore {
	return &InMemStore{
		vectorSize:    vectorSize,
		maxNeighbours: maxNeighbours,
	}
}

func (s *InMemStore) Name() string {
	return "inmem"
}

func (s *InMemStore) Add(vectors [][]float32) ([]uint32, error) {
	ids := make([]uint32, 0, len(vectors))
	for _, vector := range vectors {
		if len(vector) != s.vectorSize {
			return nil, fmt.Errorf("%w: vector size %d does not match store size %d", ErrInvalidInput, len(vector), s.vectorSize)
		}
		id := uint32(len(s.nodes) + 1)
		s.nodes = append(s.nodes, models.Node{
			Id:     id,
			Vector: slices.Clone(vector),
		})
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *InMemStore) Get(id uint32) (models.Node, error) {
	if id == 0 {
		return models.Node{}, fmt.Errorf("%w: id 0 is reserved", ErrInvalidInput)
	}
	if int(id) > len(s.nodes) {
		return models.Node{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	node := s.nodes[id-1]
	// Snapshot, callers must not see later rewrites through shared slices.
	node.Vector = slices.Clone(node.Vector)
	node.Neighbours = slices.Clone(node.Neighbours)
	return node, nil
}

func (s *InMemStore) SetNeighbours(id uint32, neighbours []uint32) error {
	if id == 0 {
		return fmt.Errorf("%w: id 0 is reserved", ErrInvalidInput)
	}
	if len(neighbours) > s.maxNeighbours {
		return fmt.Errorf("%w: %d neighbours exceed maximum of %d", ErrInvalidInput, len(neighbours), s.maxNeighbours)
	}
	if int(id) > len(s.nodes) {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	s.nodes[id-1].Neighbours = slices.Clone(neighbours)
	return nil
}

// The first node acts as the anchor. Callers treat the result as an
// arbitrary seed, not a uniform sample.
func (s *InMemStore) RandomExisting() (models.Node, error) {
	if len(s.nodes) == 0 {
		return models.Node{}, ErrNotFound
	}
	return s.Get(1)
}

func (s *InMemStore) AllIds() ([]uint32, error) {
	ids := make([]uint32, len(s.nodes))
	for i := range s.nodes {
		ids[i] = uint32(i + 1)
	}
	return ids, nil
}

func (s *InMemStore) AllNodes() (map[uint32]models.Node, error) {
	all := make(map[uint32]models.Node, len(s.nodes))
	for i := range s.nodes {
		node, err := s.Get(uint32(i + 1))
		if err != nil {
			return nil, err
		}
		all[node.Id] = node
	}
	return all, nil
}
