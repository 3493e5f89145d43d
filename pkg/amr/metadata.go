package amr

import (
	"math"

	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
	"github.com/objectfs/amrmeta/pkg/types"
)

// indexTolerance absorbs floating point error when a grid origin sits
// exactly on a cell boundary.
const indexTolerance = 1e-6

// CreateBoxForGrid returns the cell-centered index box of grid relative to
// the dataset origin. A collapsed axis (one point) maps to a single cell at
// index 0.
func CreateBoxForGrid(origin [3]float64, grid *types.Grid, level, rank int) (types.Box, error) {
	if grid == nil {
		return types.Box{}, amrerrors.Consistency("level %d block has no grid", level).
			WithComponent("amr").WithOperation("CreateBoxForGrid")
	}

	cells := grid.CellDimensions()
	var lo, hi [3]int
	for d := 0; d < 3; d++ {
		h := grid.Spacing[d]
		switch {
		case grid.Dimensions[d] <= 1:
			lo[d] = 0
		case h > 0:
			lo[d] = int(math.Floor((grid.Origin[d]-origin[d])/h + indexTolerance))
		default:
			return types.Box{}, amrerrors.Consistency("non-positive spacing %g on axis %d", h, d).
				WithComponent("amr").WithOperation("CreateBoxForGrid").WithDetail("level", level)
		}
		hi[d] = lo[d] + cells[d] - 1
	}
	return types.NewBox(level, rank, lo, hi), nil
}

// ComputeLocalMetaData assigns a box to every owned block and drops blocks
// left over from an earlier exchange. The dataset is unchanged on error.
func ComputeLocalMetaData(origin [3]float64, ds *types.Dataset, rank int) error {
	owned, err := computeOwned(origin, ds, rank)
	if err != nil {
		return err
	}
	ds.Levels = owned.commit()
	return nil
}

// ownedMeta pairs the owned blocks of a dataset, per level, with the boxes
// computed for them. Boxes reach the blocks only through commit.
type ownedMeta struct {
	blocks [][]*types.Block
	boxes  [][]types.Box
}

// computeOwned derives the boxes of the owned blocks of ds without
// modifying it.
func computeOwned(origin [3]float64, ds *types.Dataset, rank int) (*ownedMeta, error) {
	m := &ownedMeta{
		blocks: make([][]*types.Block, len(ds.Levels)),
		boxes:  make([][]types.Box, len(ds.Levels)),
	}
	for l, lvl := range ds.Levels {
		for _, b := range lvl.Blocks {
			if !b.Owned() {
				continue
			}
			box, err := CreateBoxForGrid(origin, b.Grid, l, rank)
			if err != nil {
				return nil, err
			}
			m.blocks[l] = append(m.blocks[l], b)
			m.boxes[l] = append(m.boxes[l], box)
		}
	}
	return m, nil
}

// currentOwned collects the owned blocks of ds with the boxes they already
// carry.
func currentOwned(ds *types.Dataset) *ownedMeta {
	m := &ownedMeta{
		blocks: make([][]*types.Block, len(ds.Levels)),
		boxes:  make([][]types.Box, len(ds.Levels)),
	}
	for l, lvl := range ds.Levels {
		for _, b := range lvl.Blocks {
			if b.Owned() {
				m.blocks[l] = append(m.blocks[l], b)
				m.boxes[l] = append(m.boxes[l], b.Box)
			}
		}
	}
	return m
}

// flatten returns the boxes in wire order, by level then block.
func (m *ownedMeta) flatten() []types.Box {
	var out []types.Box
	for _, boxes := range m.boxes {
		out = append(out, boxes...)
	}
	return out
}

// assign writes the computed boxes into the blocks.
func (m *ownedMeta) assign() {
	for l, blocks := range m.blocks {
		for i, b := range blocks {
			b.Box = m.boxes[l][i]
		}
	}
}

// commit assigns the boxes and returns levels holding only the owned
// blocks.
func (m *ownedMeta) commit() []types.Level {
	m.assign()
	levels := make([]types.Level, len(m.blocks))
	for l, blocks := range m.blocks {
		levels[l].Blocks = append([]*types.Block(nil), blocks...)
	}
	return levels
}
