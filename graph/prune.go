package graph

import (
	"fmt"

	"github.com/semafind/vamanadb/models"
)

// robustPrune rewrites the neighbour list of p down to at most degreeBound
// ids under the alpha occlusion rule: once a candidate is selected, any
// remaining candidate it sits much closer to than p does is dropped. The
// candidate set is usually the visited set of a greedy search towards p.
// Returns p with its new neighbours already committed to the store.
func (g *Graph) robustPrune(p models.Node, candidateIds map[uint32]struct{}, alpha float32, degreeBound int) (models.Node, error) {
	// ---------------------------
	// Working set is the candidates plus the current neighbours, minus p
	// itself. p may appear in the candidates when it was reachable during
	// the search towards its own vector.
	working := newDistSet(0)
	vectors := make(map[uint32][]float32, len(candidateIds)+len(p.Neighbours))
	collect := func(id uint32) error {
		if id == p.Id {
			return nil
		}
		node, err := g.nodes.Get(id)
		if err != nil {
			return fmt.Errorf("could not get candidate %d: %w", id, err)
		}
		working.Add(id, g.distFn(p.Vector, node.Vector))
		// Vectors are needed again for the occlusion checks below.
		vectors[id] = node.Vector
		return nil
	}
	for id := range candidateIds {
		if err := collect(id); err != nil {
			return models.Node{}, err
		}
	}
	for _, id := range p.Neighbours {
		if err := collect(id); err != nil {
			return models.Node{}, err
		}
	}
	working.Sort()
	// ---------------------------
	newNeighbours := make([]uint32, 0, degreeBound)
	for i := 0; i < len(working.items); i++ {
		closest := working.items[i]
		if closest.pruneRemoved {
			continue
		}
		newNeighbours = append(newNeighbours, closest.id)
		if len(newNeighbours) >= degreeBound {
			break
		}
		// ---------------------------
		// Occlusion sweep over the remaining candidates. The comparison is
		// done in float64 so alpha scaling cannot overflow large squared
		// distances.
		closestVector := vectors[closest.id]
		for j := i + 1; j < len(working.items); j++ {
			next := &working.items[j]
			if next.pruneRemoved {
				continue
			}
			distToClosest := g.distFn(closestVector, vectors[next.id])
			if float64(alpha)*float64(distToClosest) <= float64(next.distance) {
				next.pruneRemoved = true
			}
		}
	}
	// ---------------------------
	if err := g.nodes.SetNeighbours(p.Id, newNeighbours); err != nil {
		return models.Node{}, fmt.Errorf("could not set pruned neighbours of %d: %w", p.Id, err)
	}
	p.Neighbours = newNeighbours
	return p, nil
}
