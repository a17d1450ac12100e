package nodestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/semafind/vamanadb/models"
)

/* Fixed-record on-disk layout, big-endian throughout. The key principle is
 * that the lookup for each node id must be O(1).
 *
 * index file:
 * [header][node_slot_1][node_slot_2]...[node_slot_N]
 *
 * header (7 bytes):
 *   vectorSize    u16
 *   maxNeighbours u8
 *   nextId        u32   // next id to allocate, starts at 1
 *
 * node_slot (4 + 4*vectorSize + 4*maxNeighbours bytes):
 *   id         u32                  // 0 means empty slot
 *   vector     f32 * vectorSize
 *   neighbours u32 * maxNeighbours  // 0 entries are padding
 *
 * free-list file: sequence of u32 ids available for reuse. Reserved for a
 * future delete pass, currently always empty.
 */

const diskHeaderSize = 7

// ---------------------------

// A DiskStore owns its two files exclusively and assumes single-process
// access. It is not safe for concurrent use without external locking. The
// header nextId is written through on every allocation so a reopened store
// always continues from the latest allocation point.
type DiskStore struct {
	vectorSize    uint16
	maxNeighbours uint8
	nextId        uint32
	indexFile     *os.File
	indexPath     string
	freeListPath  string
	logger        zerolog.Logger
}

// Creates a new store, truncating any existing files at the given paths.
func NewDiskStore(vectorSize uint16, maxNeighbours uint8, indexPath string, freeListPath string) (*DiskStore, error) {
	indexFile, err := os.OpenFile(indexPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not create index file %s: %w", indexPath, err)
	}
	freeFile, err := os.OpenFile(freeListPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		indexFile.Close()
		return nil, fmt.Errorf("could not create free-list file %s: %w", freeListPath, err)
	}
	// Nothing is written to the free list until deletes exist.
	if err := freeFile.Close(); err != nil {
		indexFile.Close()
		return nil, fmt.Errorf("could not close free-list file: %w", err)
	}
	store := &DiskStore{
		vectorSize:    vectorSize,
		maxNeighbours: maxNeighbours,
		nextId:        1,
		indexFile:     indexFile,
		indexPath:     indexPath,
		freeListPath:  freeListPath,
		logger:        log.With().Str("component", "DiskStore").Str("path", indexPath).Logger(),
	}
	if err := store.writeHeader(); err != nil {
		indexFile.Close()
		return nil, err
	}
	return store, nil
}

// Opens an existing store and verifies the header against the configured
// dimensions. A mismatch is fatal because every slot offset depends on them.
func OpenDiskStore(vectorSize uint16, maxNeighbours uint8, indexPath string, freeListPath string) (*DiskStore, error) {
	indexFile, err := os.OpenFile(indexPath, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open index file %s: %w", indexPath, err)
	}
	header := make([]byte, diskHeaderSize)
	if _, err := indexFile.ReadAt(header, 0); err != nil {
		indexFile.Close()
		return nil, fmt.Errorf("could not read index header: %w", err)
	}
	gotVectorSize := binary.BigEndian.Uint16(header[0:2])
	gotMaxNeighbours := header[2]
	if gotVectorSize != vectorSize || gotMaxNeighbours != maxNeighbours {
		indexFile.Close()
		return nil, fmt.Errorf("%w: index file has vectorSize=%d maxNeighbours=%d, expected %d and %d", ErrInvalidInput, gotVectorSize, gotMaxNeighbours, vectorSize, maxNeighbours)
	}
	store := &DiskStore{
		vectorSize:    vectorSize,
		maxNeighbours: maxNeighbours,
		nextId:        binary.BigEndian.Uint32(header[3:7]),
		indexFile:     indexFile,
		indexPath:     indexPath,
		freeListPath:  freeListPath,
		logger:        log.With().Str("component", "DiskStore").Str("path", indexPath).Logger(),
	}
	store.logger.Debug().Uint32("nextId", store.nextId).Msg("OpenDiskStore")
	return store, nil
}

func (s *DiskStore) Name() string {
	return "disk"
}

func (s *DiskStore) VectorSize() uint16 {
	return s.vectorSize
}

func (s *DiskStore) MaxNeighbours() uint8 {
	return s.maxNeighbours
}

// The next id this store would allocate, used by the tiered store to carry
// the counter across tiers.
func (s *DiskStore) NextId() uint32 {
	return s.nextId
}

// ---------------------------

func (s *DiskStore) slotSize() int {
	return 4 + 4*int(s.vectorSize) + 4*int(s.maxNeighbours)
}

func (s *DiskStore) slotOffset(id uint32) int64 {
	return diskHeaderSize + int64(id-1)*int64(s.slotSize())
}

func (s *DiskStore) neighboursOffset(id uint32) int64 {
	return s.slotOffset(id) + 4 + 4*int64(s.vectorSize)
}

func (s *DiskStore) writeHeader() error {
	header := make([]byte, diskHeaderSize)
	binary.BigEndian.PutUint16(header[0:2], s.vectorSize)
	header[2] = s.maxNeighbours
	binary.BigEndian.PutUint32(header[3:7], s.nextId)
	if _, err := s.indexFile.WriteAt(header, 0); err != nil {
		return fmt.Errorf("could not write index header: %w", err)
	}
	return nil
}

func (s *DiskStore) encodeSlot(buf []byte, node models.Node) {
	binary.BigEndian.PutUint32(buf[0:4], node.Id)
	for i, value := range node.Vector {
		binary.BigEndian.PutUint32(buf[4+i*4:], math.Float32bits(value))
	}
	neighbourBase := 4 + 4*int(s.vectorSize)
	for i := 0; i < int(s.maxNeighbours); i++ {
		var neighbour uint32
		if i < len(node.Neighbours) {
			neighbour = node.Neighbours[i]
		}
		binary.BigEndian.PutUint32(buf[neighbourBase+i*4:], neighbour)
	}
}

func (s *DiskStore) decodeSlot(buf []byte) models.Node {
	node := models.Node{Id: binary.BigEndian.Uint32(buf[0:4])}
	node.Vector = make([]float32, s.vectorSize)
	for i := range node.Vector {
		node.Vector[i] = math.Float32frombits(binary.BigEndian.Uint32(buf[4+i*4:]))
	}
	neighbourBase := 4 + 4*int(s.vectorSize)
	for i := 0; i < int(s.maxNeighbours); i++ {
		neighbour := binary.BigEndian.Uint32(buf[neighbourBase+i*4:])
		// Zero entries are padding.
		if neighbour != 0 {
			node.Neighbours = append(node.Neighbours, neighbour)
		}
	}
	return node
}

// ---------------------------

func (s *DiskStore) Add(vectors [][]float32) ([]uint32, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	for _, vector := range vectors {
		if len(vector) != int(s.vectorSize) {
			return nil, fmt.Errorf("%w: vector size %d does not match store size %d", ErrInvalidInput, len(vector), s.vectorSize)
		}
	}
	// All new slots are contiguous, write them in one go.
	buf := make([]byte, len(vectors)*s.slotSize())
	ids := make([]uint32, len(vectors))
	for i, vector := range vectors {
		ids[i] = s.nextId + uint32(i)
		s.encodeSlot(buf[i*s.slotSize():(i+1)*s.slotSize()], models.Node{Id: ids[i], Vector: vector})
	}
	if _, err := s.indexFile.WriteAt(buf, s.slotOffset(s.nextId)); err != nil {
		return nil, fmt.Errorf("could not write node slots: %w", err)
	}
	s.nextId += uint32(len(vectors))
	if err := s.writeHeader(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *DiskStore) Get(id uint32) (models.Node, error) {
	if id == 0 {
		return models.Node{}, fmt.Errorf("%w: id 0 is reserved", ErrInvalidInput)
	}
	if id >= s.nextId {
		return models.Node{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	buf := make([]byte, s.slotSize())
	if _, err := s.indexFile.ReadAt(buf, s.slotOffset(id)); err != nil {
		return models.Node{}, fmt.Errorf("could not read node slot %d: %w", id, err)
	}
	node := s.decodeSlot(buf)
	if node.Id == 0 {
		return models.Node{}, fmt.Errorf("%w: slot %d is empty", ErrNotFound, id)
	}
	return node, nil
}

func (s *DiskStore) SetNeighbours(id uint32, neighbours []uint32) error {
	if id == 0 {
		return fmt.Errorf("%w: id 0 is reserved", ErrInvalidInput)
	}
	if len(neighbours) > int(s.maxNeighbours) {
		return fmt.Errorf("%w: %d neighbours exceed maximum of %d", ErrInvalidInput, len(neighbours), s.maxNeighbours)
	}
	if id >= s.nextId {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	// Check the slot is occupied before overwriting its neighbour block.
	slotId := make([]byte, 4)
	if _, err := s.indexFile.ReadAt(slotId, s.slotOffset(id)); err != nil {
		return fmt.Errorf("could not read node slot %d: %w", id, err)
	}
	if binary.BigEndian.Uint32(slotId) == 0 {
		return fmt.Errorf("%w: slot %d is empty", ErrNotFound, id)
	}
	buf := make([]byte, 4*int(s.maxNeighbours))
	for i, neighbour := range neighbours {
		binary.BigEndian.PutUint32(buf[i*4:], neighbour)
	}
	if _, err := s.indexFile.WriteAt(buf, s.neighboursOffset(id)); err != nil {
		return fmt.Errorf("could not write neighbours of node %d: %w", id, err)
	}
	return nil
}

// Writes a full node record, vector and neighbours included. Used by the
// tiered store's flusher to persist memtable entries whose ids were
// allocated above this store.
func (s *DiskStore) SetNode(node models.Node) error {
	if node.Id == 0 {
		return fmt.Errorf("%w: id 0 is reserved", ErrInvalidInput)
	}
	if len(node.Vector) != int(s.vectorSize) {
		return fmt.Errorf("%w: vector size %d does not match store size %d", ErrInvalidInput, len(node.Vector), s.vectorSize)
	}
	if len(node.Neighbours) > int(s.maxNeighbours) {
		return fmt.Errorf("%w: %d neighbours exceed maximum of %d", ErrInvalidInput, len(node.Neighbours), s.maxNeighbours)
	}
	buf := make([]byte, s.slotSize())
	s.encodeSlot(buf, node)
	if _, err := s.indexFile.WriteAt(buf, s.slotOffset(node.Id)); err != nil {
		return fmt.Errorf("could not write node slot %d: %w", node.Id, err)
	}
	if node.Id >= s.nextId {
		s.nextId = node.Id + 1
		if err := s.writeHeader(); err != nil {
			return err
		}
	}
	return nil
}

// Picks a uniformly random allocated id. When that slot is empty, as in
// sparse files written through SetNode, the following slots are probed in
// order, wrapping around, so ErrNotFound only comes back when no slot is
// occupied.
func (s *DiskStore) RandomExisting() (models.Node, error) {
	if s.nextId == 1 {
		return models.Node{}, ErrNotFound
	}
	count := s.nextId - 1
	start := uint32(rand.Intn(int(count)))
	for i := uint32(0); i < count; i++ {
		node, err := s.Get((start+i)%count + 1)
		if !errors.Is(err, ErrNotFound) {
			return node, err
		}
	}
	return models.Node{}, ErrNotFound
}

func (s *DiskStore) AllIds() ([]uint32, error) {
	ids := make([]uint32, 0, s.nextId-1)
	slotId := make([]byte, 4)
	for id := uint32(1); id < s.nextId; id++ {
		if _, err := s.indexFile.ReadAt(slotId, s.slotOffset(id)); err != nil {
			return nil, fmt.Errorf("could not read node slot %d: %w", id, err)
		}
		if binary.BigEndian.Uint32(slotId) == 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *DiskStore) AllNodes() (map[uint32]models.Node, error) {
	ids, err := s.AllIds()
	if err != nil {
		return nil, err
	}
	all := make(map[uint32]models.Node, len(ids))
	for _, id := range ids {
		node, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		all[id] = node
	}
	return all, nil
}

// ---------------------------

func (s *DiskStore) Flush() error {
	if err := s.writeHeader(); err != nil {
		return err
	}
	if err := s.indexFile.Sync(); err != nil {
		return fmt.Errorf("could not sync index file: %w", err)
	}
	return nil
}

func (s *DiskStore) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	if err := s.indexFile.Close(); err != nil {
		return fmt.Errorf("could not close index file: %w", err)
	}
	return nil
}
