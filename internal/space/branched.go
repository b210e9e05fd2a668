package space

import (
	"errors"
	"fmt"
)

// DefaultConcatOp joins branch outputs where they meet the stem.
const DefaultConcatOp = "concatenate"

var ErrNilStem = errors.New("branched space requires a stem")

type BranchKind int

const (
	BranchInput BranchKind = iota
	BranchStem
)

func (k BranchKind) String() string {
	switch k {
	case BranchInput:
		return "input"
	case BranchStem:
		return "stem"
	default:
		return fmt.Sprintf("branch-kind(%d)", int(k))
	}
}

// BranchRef locates a branch inside a branched space. Index is the input
// branch position, or -1 for the stem.
type BranchRef struct {
	Kind  BranchKind
	Index int
}

// BranchedModelSpace flattens one or more input branches plus a stem into a
// single contiguous layer numbering: all branch layers in declaration
// order, then the stem. The embedded ModelSpace serves the flattened view.
//
// The branch maps are derived once at construction; mutating the flattened
// space afterwards desynchronizes them and they are not re-validated.
type BranchedModelSpace struct {
	*ModelSpace
	branches      []*ModelSpace
	stem          *ModelSpace
	concatOp      string
	layerToBranch map[int]BranchRef
	branchToLayer map[BranchRef][]int
}

// NewBranchedModelSpace builds the flattened space. An empty concatOp
// selects DefaultConcatOp.
func NewBranchedModelSpace(branches []*ModelSpace, stem *ModelSpace, concatOp string) (*BranchedModelSpace, error) {
	if stem == nil {
		return nil, ErrNilStem
	}
	if concatOp == "" {
		concatOp = DefaultConcatOp
	}
	b := &BranchedModelSpace{
		ModelSpace:    NewModelSpace(),
		branches:      append([]*ModelSpace(nil), branches...),
		stem:          stem,
		concatOp:      concatOp,
		layerToBranch: make(map[int]BranchRef),
		branchToLayer: make(map[BranchRef][]int),
	}
	next := 0
	for i, br := range branches {
		ref := BranchRef{Kind: BranchInput, Index: i}
		var err error
		next, err = b.flatten(br, ref, next)
		if err != nil {
			return nil, fmt.Errorf("input branch %d: %w", i, err)
		}
	}
	stemRef := BranchRef{Kind: BranchStem, Index: -1}
	if _, err := b.flatten(stem, stemRef, next); err != nil {
		return nil, fmt.Errorf("stem: %w", err)
	}
	return b, nil
}

func (b *BranchedModelSpace) flatten(sub *ModelSpace, ref BranchRef, next int) (int, error) {
	if sub == nil {
		return next, errors.New("nil subspace")
	}
	for j := 0; j < sub.Len(); j++ {
		ops, err := sub.Layer(j)
		if err != nil {
			return next, err
		}
		if err := b.ModelSpace.AddLayer(next, ops); err != nil {
			return next, err
		}
		b.layerToBranch[next] = ref
		b.branchToLayer[ref] = append(b.branchToLayer[ref], next)
		next++
	}
	return next, nil
}

func (b *BranchedModelSpace) ConcatOp() string { return b.concatOp }

func (b *BranchedModelSpace) Branches() []*ModelSpace {
	return append([]*ModelSpace(nil), b.branches...)
}

func (b *BranchedModelSpace) Stem() *ModelSpace { return b.stem }

// BranchOf reports which branch the flattened layer id belongs to.
// Negative ids wrap once, matching Layer.
func (b *BranchedModelSpace) BranchOf(layerID int) (BranchRef, error) {
	id, err := b.resolve(layerID)
	if err != nil {
		return BranchRef{}, err
	}
	return b.layerToBranch[id], nil
}

// LayerToBranch returns a copy of the flattened-layer-to-branch map.
func (b *BranchedModelSpace) LayerToBranch() map[int]BranchRef {
	out := make(map[int]BranchRef, len(b.layerToBranch))
	for k, v := range b.layerToBranch {
		out[k] = v
	}
	return out
}

// BranchToLayer returns a copy of the branch-to-flattened-layers map. Layer
// ids appear in flattening order.
func (b *BranchedModelSpace) BranchToLayer() map[BranchRef][]int {
	out := make(map[BranchRef][]int, len(b.branchToLayer))
	for k, v := range b.branchToLayer {
		out[k] = append([]int(nil), v...)
	}
	return out
}
