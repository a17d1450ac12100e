package graph

import (
	"fmt"
)

// GreedySearch walks the graph best-first from the seed node towards the
// query. It returns the k closest ids found in ascending distance order and
// the set of every id whose neighbours were expanded. The visited set is
// what robust pruning feeds on, so it is part of the contract and not a mere
// diagnostic.
func (g *Graph) GreedySearch(seedId uint32, query []float32, k int, searchListSize int) ([]uint32, map[uint32]struct{}, error) {
	if searchListSize < k {
		return nil, nil, fmt.Errorf("searchListSize (%d) must be at least k (%d)", searchListSize, k)
	}
	// ---------------------------
	searchSet := newDistSet(searchListSize)
	visited := make(map[uint32]struct{})
	// ---------------------------
	seedNode, err := g.nodes.Get(seedId)
	if err != nil {
		return nil, nil, fmt.Errorf("could not get seed node: %w", err)
	}
	searchSet.AddWithLimit(seedId, g.distFn(seedNode.Vector, query))
	// ---------------------------
	/* The loop curates the closest nodes to the query along the way. The
	 * search set doubles as frontier and result list with set semantics, it
	 * terminates once every node on the list has been visited. */
	for i := 0; i < searchSet.Len(); {
		elem := &searchSet.items[i]
		if elem.visited {
			i++
			continue
		}
		elem.visited = true
		visited[elem.id] = struct{}{}
		// ---------------------------
		node, err := g.nodes.Get(elem.id)
		if err != nil {
			return nil, nil, fmt.Errorf("could not get node %d for expansion: %w", elem.id, err)
		}
		for _, neighbourId := range node.Neighbours {
			if _, ok := visited[neighbourId]; ok {
				continue
			}
			neighbour, err := g.nodes.Get(neighbourId)
			if err != nil {
				return nil, nil, fmt.Errorf("could not get neighbour %d: %w", neighbourId, err)
			}
			searchSet.AddWithLimit(neighbourId, g.distFn(neighbour.Vector, query))
		}
		// Additions may land anywhere in the list, restart the scan at the
		// closest unvisited candidate.
		i = 0
	}
	// ---------------------------
	return searchSet.KClosest(k), visited, nil
}

// GreedySearchRandomStart seeds the search from whatever existing node the
// store hands out.
func (g *Graph) GreedySearchRandomStart(query []float32, k int, searchListSize int) ([]uint32, map[uint32]struct{}, error) {
	seed, err := g.nodes.RandomExisting()
	if err != nil {
		return nil, nil, fmt.Errorf("could not pick a seed node: %w", err)
	}
	return g.GreedySearch(seed.Id, query, k, searchListSize)
}
