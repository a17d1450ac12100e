package graph

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/semafind/vamanadb/distance"
	"github.com/semafind/vamanadb/models"
	"github.com/semafind/vamanadb/nodestore"
	"github.com/semafind/vamanadb/payloadstore"
	"github.com/semafind/vamanadb/utils"
)

// ---------------------------

const (
	// Input entries are flushed to the store in batches of this size during
	// bulk construction.
	buildBatchSize = 1000
	// The index pass runs a narrow search per node, it only needs the
	// visited set, not a precise result list.
	indexSearchK        = 3
	indexSearchListSize = 10
)

// ---------------------------

// A Graph owns a node store and the index algorithms over it. The edges are
// represented as ids and resolved through the store, the graph itself is
// inherently cyclic so nothing chains pointers.
type Graph struct {
	nodes    nodestore.NodeStore
	payloads payloadstore.PayloadStore
	params   models.GraphParameters
	distFn   distance.DistFunc
	logger   zerolog.Logger
}

// NewGraph builds a graph over the given stores and bulk-loads the input
// stream. Each batch of entries is appended to the node store, payloads are
// recorded against the assigned ids, and once the stream is drained every
// new node is wired to RInit random new nodes with bidirectional half-edges.
// The input channel may be closed immediately for an initially empty graph.
func NewGraph(ctx context.Context, input <-chan []models.Entry, params models.GraphParameters, nodeStore nodestore.NodeStore, payloadStore payloadstore.PayloadStore) (*Graph, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph parameters: %w", err)
	}
	g := &Graph{
		nodes:    nodeStore,
		payloads: payloadStore,
		params:   params,
		distFn:   distance.SquaredEuclidean,
		logger:   log.With().Str("component", "Graph").Str("store", nodeStore.Name()).Logger(),
	}
	if err := g.bulkLoad(ctx, input); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) Parameters() models.GraphParameters {
	return g.params
}

// ---------------------------

func (g *Graph) bulkLoad(ctx context.Context, input <-chan []models.Entry) error {
	startTime := time.Now()
	newIds := make([]uint32, 0)
	// ---------------------------
	batch := make([]models.Entry, 0, buildBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		vectors := make([][]float32, len(batch))
		for i, entry := range batch {
			vectors[i] = entry.Vector
		}
		ids, err := g.nodes.Add(vectors)
		if err != nil {
			return fmt.Errorf("could not add node batch: %w", err)
		}
		for i, id := range ids {
			if g.payloads != nil && batch[i].Payload != nil {
				if err := g.payloads.Put(id, batch[i].Payload); err != nil {
					return fmt.Errorf("could not store payload of %d: %w", id, err)
				}
			}
		}
		newIds = append(newIds, ids...)
		batch = batch[:0]
		return nil
	}
	// ---------------------------
	errC := utils.SinkWithContext(ctx, input, func(entries []models.Entry) error {
		for _, entry := range entries {
			batch = append(batch, entry)
			if len(batch) == buildBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err := <-errC; err != nil {
		return fmt.Errorf("could not sink input stream: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}
	// ---------------------------
	if err := g.wireRandomEdges(newIds); err != nil {
		return err
	}
	if len(newIds) > 0 {
		g.logger.Debug().Int("count", len(newIds)).Str("duration", time.Since(startTime).String()).Msg("Graph - BulkLoad")
	}
	return nil
}

// Gives every new node RInit random neighbours among the other new nodes,
// with the reverse half-edge added as well. Degrees stay within RMax.
func (g *Graph) wireRandomEdges(newIds []uint32) error {
	if len(newIds) < 2 {
		return nil
	}
	neighbours := make([]map[uint32]struct{}, len(newIds))
	for i := range neighbours {
		neighbours[i] = make(map[uint32]struct{}, g.params.RInit)
	}
	// ---------------------------
	for i := range newIds {
		for r := 0; r < g.params.RInit; r++ {
			if len(neighbours[i]) >= g.params.RMax {
				break
			}
			// Bounded retries, when nearly every node is at the degree cap
			// there may be no eligible partner left.
			for attempt := 0; attempt < 2*len(newIds); attempt++ {
				j := rand.Intn(len(newIds))
				if j == i || len(neighbours[j]) >= g.params.RMax {
					continue
				}
				if _, ok := neighbours[i][newIds[j]]; ok {
					continue
				}
				neighbours[i][newIds[j]] = struct{}{}
				neighbours[j][newIds[i]] = struct{}{}
				break
			}
		}
	}
	// ---------------------------
	for i, id := range newIds {
		set := make([]uint32, 0, len(neighbours[i]))
		for neighbourId := range neighbours[i] {
			set = append(set, neighbourId)
		}
		slices.Sort(set)
		if err := g.nodes.SetNeighbours(id, set); err != nil {
			return fmt.Errorf("could not wire node %d: %w", id, err)
		}
	}
	return nil
}

// ---------------------------

// Index runs one Vamana pass over every node in a random order: greedy
// search towards the node from a fixed seed, robust prune of the visited
// set, then back-edges with re-pruning wherever the degree cap is exceeded.
// A practical build calls this twice, with alpha 1.0 then 1.2.
func (g *Graph) Index(ctx context.Context, alpha float32) error {
	if alpha < 1.0 {
		return fmt.Errorf("alpha (%f) must be at least 1.0", alpha)
	}
	startTime := time.Now()
	// The seed is frozen at pass start, every search walks from the same
	// anchor.
	seed, err := g.nodes.RandomExisting()
	if err != nil {
		return fmt.Errorf("could not pick a seed node: %w", err)
	}
	ids, err := g.nodes.AllIds()
	if err != nil {
		return fmt.Errorf("could not enumerate nodes: %w", err)
	}
	rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	// ---------------------------
	for _, pId := range ids {
		// Cooperative cancellation between iterations, the pass has no finer
		// grained suspension points of its own.
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("index pass cancelled: %w", err)
		}
		pNode, err := g.nodes.Get(pId)
		if err != nil {
			return fmt.Errorf("could not get node %d: %w", pId, err)
		}
		_, visited, err := g.GreedySearch(seed.Id, pNode.Vector, indexSearchK, indexSearchListSize)
		if err != nil {
			return fmt.Errorf("could not search towards node %d: %w", pId, err)
		}
		pNode, err = g.robustPrune(pNode, visited, alpha, g.params.RMax)
		if err != nil {
			return err
		}
		if err := g.addBackEdges(pNode, alpha); err != nil {
			return err
		}
	}
	g.logger.Debug().Float32("alpha", alpha).Int("count", len(ids)).Str("duration", time.Since(startTime).String()).Msg("Graph - Index")
	return nil
}

// For every out-neighbour q of p, add the reverse half-edge q -> p. When
// that pushes q over the degree cap its whole neighbour list is re-pruned,
// which may drop either direction again.
func (g *Graph) addBackEdges(p models.Node, alpha float32) error {
	for _, qId := range p.Neighbours {
		qNode, err := g.nodes.Get(qId)
		if err != nil {
			return fmt.Errorf("could not get neighbour %d: %w", qId, err)
		}
		if slices.Contains(qNode.Neighbours, p.Id) {
			continue
		}
		newSet := append(qNode.Neighbours, p.Id)
		if len(newSet) > g.params.RMax {
			candidates := make(map[uint32]struct{}, len(newSet))
			for _, id := range newSet {
				candidates[id] = struct{}{}
			}
			if _, err := g.robustPrune(qNode, candidates, alpha, g.params.RMax); err != nil {
				return err
			}
		} else if err := g.nodes.SetNeighbours(qId, newSet); err != nil {
			return fmt.Errorf("could not add back-edge %d -> %d: %w", qId, p.Id, err)
		}
	}
	return nil
}

// ---------------------------

// Insert adds a single vector to an already indexed graph. The search walks
// from seedId, or from an arbitrary existing node when seedId is the
// reserved 0. Returns the new node with its pruned neighbour set.
func (g *Graph) Insert(vector []float32, payload []byte, seedId uint32, alpha float32, searchListSize int) (models.Node, error) {
	startTime := time.Now()
	if seedId == 0 {
		seed, err := g.nodes.RandomExisting()
		switch {
		case errors.Is(err, nodestore.ErrNotFound):
			// The very first node has nothing to search from, it simply
			// becomes the entry point of the graph.
		case err != nil:
			return models.Node{}, fmt.Errorf("could not pick a seed node: %w", err)
		default:
			seedId = seed.Id
		}
	}
	var visited map[uint32]struct{}
	if seedId != 0 {
		var err error
		_, visited, err = g.GreedySearch(seedId, vector, 1, searchListSize)
		if err != nil {
			return models.Node{}, fmt.Errorf("could not search for insert position: %w", err)
		}
	}
	// ---------------------------
	ids, err := g.nodes.Add([][]float32{vector})
	if err != nil {
		return models.Node{}, fmt.Errorf("could not add node: %w", err)
	}
	id := ids[0]
	if g.payloads != nil && payload != nil {
		if err := g.payloads.Put(id, payload); err != nil {
			return models.Node{}, fmt.Errorf("could not store payload of %d: %w", id, err)
		}
	}
	// ---------------------------
	newNode, err := g.nodes.Get(id)
	if err != nil {
		return models.Node{}, fmt.Errorf("could not get new node %d: %w", id, err)
	}
	if len(visited) > 0 {
		newNode, err = g.robustPrune(newNode, visited, alpha, g.params.RMax)
		if err != nil {
			return models.Node{}, err
		}
		if err := g.addBackEdges(newNode, alpha); err != nil {
			return models.Node{}, err
		}
	}
	g.logger.Debug().Uint32("id", id).Str("duration", time.Since(startTime).String()).Msg("Graph - Insert")
	return newNode, nil
}

// ---------------------------

// SearchWithPayloads joins the k nearest ids against the payload store.
func (g *Graph) SearchWithPayloads(query []float32, k int, searchListSize int) ([]models.SearchResult, error) {
	startTime := time.Now()
	ids, _, err := g.GreedySearchRandomStart(query, k, searchListSize)
	if err != nil {
		return nil, err
	}
	results := make([]models.SearchResult, 0, len(ids))
	for _, id := range ids {
		node, err := g.nodes.Get(id)
		if err != nil {
			return nil, fmt.Errorf("could not get result node %d: %w", id, err)
		}
		result := models.SearchResult{
			NodeId:   id,
			Distance: g.distFn(node.Vector, query),
		}
		if g.payloads != nil {
			payload, ok, err := g.payloads.Get(id)
			if err != nil {
				return nil, fmt.Errorf("could not get payload of %d: %w", id, err)
			}
			if ok {
				result.Payload = payload
			}
		}
		results = append(results, result)
	}
	g.logger.Debug().Int("k", k).Str("duration", time.Since(startTime).String()).Msg("Graph - Search")
	return results, nil
}
