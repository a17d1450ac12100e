package nodestore

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/semafind/vamanadb/models"
)

// ---------------------------

// The designated anchor id returned by RandomExisting. Keeping the seed
// stable during the early build avoids chasing ids that are still in flight
// between tiers.
const anchorId = 1

/* A TieredStore layers two in-memory tiers over a long-term DiskStore, in
 * the manner of FreshDiskANN. All writes land in the writable memtable.
 * When the writable reaches the promotion threshold it is atomically swapped
 * into the frozen queue and a background flusher drains frozen memtables
 * oldest first into the long-term store.
 *
 * Reads check writable, then frozen newest first, then long-term. First hit
 * wins; this ordering is what keeps a stale neighbour set on disk from
 * masking a live update. Enumeration merges in the reverse order so later
 * tiers overwrite earlier ones.
 *
 * One writer plus the background flusher may operate in parallel. Readers
 * never hold two tier locks at once, which is what keeps the flusher's
 * long-term writes from deadlocking against the lookup path. */
type TieredStore struct {
	// ---------------------------
	longTerm   *DiskStore
	longTermMu sync.RWMutex
	// ---------------------------
	writableMu sync.RWMutex
	writable   map[uint32]models.Node
	nextId     uint32
	// ---------------------------
	// frozenMu also backs the flush condition variable.
	frozenMu sync.RWMutex
	frozen   []map[uint32]models.Node
	flushReady *sync.Cond
	closing    bool
	// ---------------------------
	flusherDone chan struct{}
	flushErrMu  sync.Mutex
	flushErr    error
	threshold   int
	logger      zerolog.Logger
}

// Wraps the given long-term store. The id counter continues from whatever
// the long-term store has already allocated. A threshold of 0 uses the
// default.
func NewTieredStore(longTerm *DiskStore, threshold int) *TieredStore {
	if threshold <= 0 {
		threshold = models.DefaultMemtableThreshold
	}
	ts := &TieredStore{
		longTerm:    longTerm,
		writable:    make(map[uint32]models.Node),
		nextId:      longTerm.NextId(),
		flusherDone: make(chan struct{}),
		threshold:   threshold,
		logger:      log.With().Str("component", "TieredStore").Logger(),
	}
	ts.flushReady = sync.NewCond(&ts.frozenMu)
	go ts.flusher()
	return ts
}

func (ts *TieredStore) Name() string {
	return "tiered"
}

// ---------------------------

func (ts *TieredStore) Add(vectors [][]float32) ([]uint32, error) {
	for _, vector := range vectors {
		if len(vector) != int(ts.longTerm.VectorSize()) {
			return nil, fmt.Errorf("%w: vector size %d does not match store size %d", ErrInvalidInput, len(vector), ts.longTerm.VectorSize())
		}
	}
	ids := make([]uint32, 0, len(vectors))
	ts.writableMu.Lock()
	for _, vector := range vectors {
		id := ts.nextId
		ts.nextId++
		ts.writable[id] = models.Node{Id: id, Vector: slices.Clone(vector)}
		ids = append(ids, id)
	}
	ts.writableMu.Unlock()
	ts.maybePromote()
	return ids, nil
}

func (ts *TieredStore) Get(id uint32) (models.Node, error) {
	if id == 0 {
		return models.Node{}, fmt.Errorf("%w: id 0 is reserved", ErrInvalidInput)
	}
	// ---------------------------
	ts.writableMu.RLock()
	if node, ok := ts.writable[id]; ok {
		ts.writableMu.RUnlock()
		return cloneNode(node), nil
	}
	ts.writableMu.RUnlock()
	// ---------------------------
	// Newest frozen memtable first so the latest update is observed.
	ts.frozenMu.RLock()
	for i := len(ts.frozen) - 1; i >= 0; i-- {
		if node, ok := ts.frozen[i][id]; ok {
			ts.frozenMu.RUnlock()
			return cloneNode(node), nil
		}
	}
	ts.frozenMu.RUnlock()
	// ---------------------------
	ts.longTermMu.RLock()
	defer ts.longTermMu.RUnlock()
	return ts.longTerm.Get(id)
}

func (ts *TieredStore) SetNeighbours(id uint32, neighbours []uint32) error {
	if len(neighbours) > int(ts.longTerm.MaxNeighbours()) {
		return fmt.Errorf("%w: %d neighbours exceed maximum of %d", ErrInvalidInput, len(neighbours), ts.longTerm.MaxNeighbours())
	}
	// Read through all tiers, then land the rewritten node in the writable.
	node, err := ts.Get(id)
	if err != nil {
		return err
	}
	node.Neighbours = slices.Clone(neighbours)
	ts.writableMu.Lock()
	ts.writable[id] = node
	ts.writableMu.Unlock()
	ts.maybePromote()
	return nil
}

// The anchor node seeds the index pass. ErrNotFound means the store is
// still empty.
func (ts *TieredStore) RandomExisting() (models.Node, error) {
	return ts.Get(anchorId)
}

func (ts *TieredStore) AllIds() ([]uint32, error) {
	all, err := ts.AllNodes()
	if err != nil {
		return nil, err
	}
	ids := make([]uint32, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	return ids, nil
}

// Long-term first, then frozen oldest to newest, then writable last, so the
// freshest version of each id wins.
func (ts *TieredStore) AllNodes() (map[uint32]models.Node, error) {
	ts.longTermMu.RLock()
	all, err := ts.longTerm.AllNodes()
	ts.longTermMu.RUnlock()
	if err != nil {
		return nil, err
	}
	// ---------------------------
	ts.frozenMu.RLock()
	for _, memtable := range ts.frozen {
		for id, node := range memtable {
			all[id] = cloneNode(node)
		}
	}
	ts.frozenMu.RUnlock()
	// ---------------------------
	ts.writableMu.RLock()
	for id, node := range ts.writable {
		all[id] = cloneNode(node)
	}
	ts.writableMu.RUnlock()
	return all, nil
}

// ---------------------------

// Swaps a full writable memtable into the frozen queue and wakes the
// flusher. Lock order is writable then frozen, matching writers.
func (ts *TieredStore) maybePromote() {
	ts.writableMu.Lock()
	if len(ts.writable) < ts.threshold {
		ts.writableMu.Unlock()
		return
	}
	full := ts.writable
	// Both locks are held across the swap so a reader cannot observe the
	// memtable in neither tier. Readers only ever hold one tier lock, so the
	// writable-then-frozen order cannot deadlock them.
	ts.frozenMu.Lock()
	ts.writable = make(map[uint32]models.Node)
	ts.frozen = append(ts.frozen, full)
	ts.frozenMu.Unlock()
	ts.writableMu.Unlock()
	ts.flushReady.Signal()
	ts.logger.Debug().Int("size", len(full)).Msg("TieredStore - promoted memtable")
}

func (ts *TieredStore) flusher() {
	defer close(ts.flusherDone)
	for {
		ts.frozenMu.Lock()
		for len(ts.frozen) == 0 && !ts.closing {
			ts.flushReady.Wait()
		}
		if len(ts.frozen) == 0 {
			ts.frozenMu.Unlock()
			return
		}
		// Peek the oldest entry, release the queue lock before any disk IO.
		head := ts.frozen[0]
		ts.frozenMu.Unlock()
		// ---------------------------
		if err := ts.flushMemtable(head); err != nil {
			/* The worker has no caller to hand the error to. Record it for
			 * Close and stop, keeping the frozen entry readable so nothing is
			 * lost. */
			ts.logger.Error().Err(err).Msg("TieredStore - flush failed")
			ts.flushErrMu.Lock()
			ts.flushErr = err
			ts.flushErrMu.Unlock()
			return
		}
		// ---------------------------
		ts.frozenMu.Lock()
		ts.frozen = ts.frozen[1:]
		ts.frozenMu.Unlock()
	}
}

func (ts *TieredStore) flushMemtable(memtable map[uint32]models.Node) error {
	startTime := time.Now()
	ts.longTermMu.Lock()
	defer ts.longTermMu.Unlock()
	for _, node := range memtable {
		if err := ts.longTerm.SetNode(node); err != nil {
			return fmt.Errorf("could not flush node %d: %w", node.Id, err)
		}
	}
	if err := ts.longTerm.Flush(); err != nil {
		return fmt.Errorf("could not flush long-term store: %w", err)
	}
	ts.logger.Debug().Int("size", len(memtable)).Str("duration", time.Since(startTime).String()).Msg("TieredStore - flushed memtable")
	return nil
}

// Promotes any remaining writable entries, drains the frozen queue and
// closes the long-term store.
func (ts *TieredStore) Close() error {
	ts.writableMu.Lock()
	remaining := ts.writable
	ts.writable = make(map[uint32]models.Node)
	ts.writableMu.Unlock()
	// ---------------------------
	ts.frozenMu.Lock()
	if len(remaining) > 0 {
		ts.frozen = append(ts.frozen, remaining)
	}
	ts.closing = true
	ts.frozenMu.Unlock()
	ts.flushReady.Broadcast()
	<-ts.flusherDone
	// ---------------------------
	ts.flushErrMu.Lock()
	flushErr := ts.flushErr
	ts.flushErrMu.Unlock()
	if flushErr != nil {
		ts.longTerm.Close()
		return flushErr
	}
	ts.longTermMu.Lock()
	defer ts.longTermMu.Unlock()
	return ts.longTerm.Close()
}

func cloneNode(node models.Node) models.Node {
	node.Vector = slices.Clone(node.Vector)
	node.Neighbours = slices.Clone(node.Neighbours)
	return node
}
