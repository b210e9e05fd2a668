package space

import (
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"sort"

	"golang.org/x/exp/maps"
)

var (
	ErrIntegrity      = errors.New("model space integrity violated")
	ErrLayerRange     = errors.New("layer id out of range")
	ErrCandidateRange = errors.New("candidate index out of range")
	ErrEmptyLayer     = errors.New("layer has no candidates")
)

// ModelSpace maps layer positions to candidate operation lists. Layer ids
// must stay contiguous from zero. Mutations that leave a gap are applied
// as asked and reported through ErrIntegrity; the caller repairs by
// reconstructing in order.
//
// A ModelSpace handed to a builder is treated as read-only from that point
// on. Builders never mutate it.
type ModelSpace struct {
	layers map[int][]Operation
}

func NewModelSpace() *ModelSpace {
	return &ModelSpace{layers: make(map[int][]Operation)}
}

// FromLayers constructs a space from ordered candidate lists, one per layer.
func FromLayers(layers [][]Operation) (*ModelSpace, error) {
	s := NewModelSpace()
	for i, ops := range layers {
		if err := s.AddLayer(i, ops); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *ModelSpace) Len() int { return len(s.layers) }

// resolve translates a negative layer id (one wrap from the end) and
// verifies the layer exists.
func (s *ModelSpace) resolve(layerID int) (int, error) {
	id := layerID
	if id < 0 {
		id += len(s.layers)
	}
	if _, ok := s.layers[id]; !ok {
		return 0, fmt.Errorf("%w: %d (space has %d layers)", ErrLayerRange, layerID, len(s.layers))
	}
	return id, nil
}

// Layer returns a copy of the candidate list at layerID. Negative ids wrap
// once from the end, so -1 is the last layer.
func (s *ModelSpace) Layer(layerID int) ([]Operation, error) {
	id, err := s.resolve(layerID)
	if err != nil {
		return nil, err
	}
	out := make([]Operation, len(s.layers[id]))
	copy(out, s.layers[id])
	return out, nil
}

// CandidateCount returns the number of candidates at layerID.
func (s *ModelSpace) CandidateCount(layerID int) (int, error) {
	id, err := s.resolve(layerID)
	if err != nil {
		return 0, err
	}
	return len(s.layers[id]), nil
}

// AddLayer sets (or overwrites) the candidate list at layerID, then checks
// contiguity. The mutation sticks even when the check fails.
func (s *ModelSpace) AddLayer(layerID int, candidates []Operation) error {
	ops := make([]Operation, len(candidates))
	copy(ops, candidates)
	s.layers[layerID] = ops
	return s.checkIntegrity()
}

// DeleteLayer removes the layer at layerID (negative ids wrap once), then
// checks contiguity. Deleting an interior layer therefore reports
// ErrIntegrity while the deletion stands.
func (s *ModelSpace) DeleteLayer(layerID int) error {
	id, err := s.resolve(layerID)
	if err != nil {
		return err
	}
	delete(s.layers, id)
	return s.checkIntegrity()
}

// AddState appends one candidate to an existing layer. It never changes
// the layer count.
func (s *ModelSpace) AddState(layerID int, op Operation) error {
	id, err := s.resolve(layerID)
	if err != nil {
		return err
	}
	s.layers[id] = append(s.layers[id], op)
	return nil
}

// DeleteState removes the candidate at index from an existing layer.
func (s *ModelSpace) DeleteState(layerID, index int) error {
	id, err := s.resolve(layerID)
	if err != nil {
		return err
	}
	ops := s.layers[id]
	if index < 0 || index >= len(ops) {
		return fmt.Errorf("%w: %d (layer %d has %d candidates)", ErrCandidateRange, index, id, len(ops))
	}
	s.layers[id] = append(ops[:index], ops[index+1:]...)
	return nil
}

func (s *ModelSpace) checkIntegrity() error {
	if len(s.layers) == 0 {
		return nil
	}
	ids := maps.Keys(s.layers)
	sort.Ints(ids)
	if ids[0] != 0 || ids[len(ids)-1] != len(ids)-1 {
		return fmt.Errorf("%w: have layer ids %v, want 0..%d", ErrIntegrity, ids, len(s.layers)-1)
	}
	return nil
}

// Size returns the number of distinct architectures, the product of the
// per-layer candidate counts. A space with no layers has size 1 (empty
// product); any empty layer collapses the product to zero.
func (s *ModelSpace) Size() *big.Int {
	size := big.NewInt(1)
	for i := 0; i < len(s.layers); i++ {
		size.Mul(size, big.NewInt(int64(len(s.layers[i]))))
	}
	return size
}

// RandomStates draws one uniformly chosen candidate per layer. The result
// is a draw from the space, not a validity-checked architecture.
func (s *ModelSpace) RandomStates(rng *rand.Rand) ([]Operation, error) {
	out := make([]Operation, 0, len(s.layers))
	for i := 0; i < len(s.layers); i++ {
		ops, ok := s.layers[i]
		if !ok {
			return nil, fmt.Errorf("%w: have layer ids %v", ErrIntegrity, sortedKeys(s.layers))
		}
		if len(ops) == 0 {
			return nil, fmt.Errorf("%w: layer %d", ErrEmptyLayer, i)
		}
		out = append(out, ops[rng.Intn(len(ops))])
	}
	return out, nil
}

func (s *ModelSpace) String() string {
	return fmt.Sprintf("model space with %d layers and %s total combinations", s.Len(), s.Size().String())
}

func sortedKeys(m map[int][]Operation) []int {
	ids := maps.Keys(m)
	sort.Ints(ids)
	return ids
}
