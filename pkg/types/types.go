package types

import (
	"fmt"
	"math"
)

// Box is the inclusive cell-index footprint of a block within its level's
// index space. Hi < Lo on any axis makes the box empty.
type Box struct {
	Level int    `json:"level"`
	Rank  int    `json:"rank"`
	Lo    [3]int `json:"lo"`
	Hi    [3]int `json:"hi"`
}

// NewBox returns a box at the given level owned by rank.
func NewBox(level, rank int, lo, hi [3]int) Box {
	return Box{Level: level, Rank: rank, Lo: lo, Hi: hi}
}

// CellCount returns the number of cells along axis, zero for empty axes.
func (b Box) CellCount(axis int) int {
	if n := b.Hi[axis] - b.Lo[axis] + 1; n > 0 {
		return n
	}
	return 0
}

// NumberOfCells returns the total number of cells covered by the box.
func (b Box) NumberOfCells() int {
	return b.CellCount(0) * b.CellCount(1) * b.CellCount(2)
}

// EmptyDimension reports whether the box has no cells along axis.
func (b Box) EmptyDimension(axis int) bool {
	return b.Hi[axis] < b.Lo[axis]
}

// Empty reports whether the box covers no cells.
func (b Box) Empty() bool {
	return b.EmptyDimension(0) || b.EmptyDimension(1) || b.EmptyDimension(2)
}

// Intersect returns the overlap of two boxes. The level and rank of the
// receiver are kept. ok is false when the boxes share no cell.
func (b Box) Intersect(other Box) (Box, bool) {
	out := b
	for d := 0; d < 3; d++ {
		out.Lo[d] = max(b.Lo[d], other.Lo[d])
		out.Hi[d] = min(b.Hi[d], other.Hi[d])
	}
	return out, !out.Empty()
}

// SameExtent reports whether both boxes cover the same cells at the same level.
func (b Box) SameExtent(other Box) bool {
	return b.Level == other.Level && b.Lo == other.Lo && b.Hi == other.Hi
}

func (b Box) String() string {
	return fmt.Sprintf("L%d@%d[%d,%d,%d]-[%d,%d,%d]",
		b.Level, b.Rank, b.Lo[0], b.Lo[1], b.Lo[2], b.Hi[0], b.Hi[1], b.Hi[2])
}

// Grid is a uniform rectilinear block of point and cell data.
type Grid struct {
	Origin     [3]float64 `json:"origin"`
	Spacing    [3]float64 `json:"spacing"`
	Dimensions [3]int     `json:"dimensions"` // point dimensions
	PointData  *FieldData `json:"-"`
	CellData   *FieldData `json:"-"`
}

// NewGrid allocates a grid with empty point and cell data.
func NewGrid(origin, spacing [3]float64, dims [3]int) *Grid {
	return &Grid{
		Origin:     origin,
		Spacing:    spacing,
		Dimensions: dims,
		PointData:  NewFieldData(),
		CellData:   NewFieldData(),
	}
}

// CellDimensions follows the structured-data convention: an axis with a
// single point still holds one cell layer.
func (g *Grid) CellDimensions() [3]int {
	var cells [3]int
	for d := 0; d < 3; d++ {
		cells[d] = max(g.Dimensions[d]-1, 1)
	}
	return cells
}

// NumberOfPoints returns the point count.
func (g *Grid) NumberOfPoints() int {
	return g.Dimensions[0] * g.Dimensions[1] * g.Dimensions[2]
}

// NumberOfCells returns the cell count.
func (g *Grid) NumberOfCells() int {
	c := g.CellDimensions()
	return c[0] * c[1] * c[2]
}

// Bounds returns {xmin,ymin,zmin,xmax,ymax,zmax} in world coordinates.
func (g *Grid) Bounds() [6]float64 {
	var b [6]float64
	for d := 0; d < 3; d++ {
		b[d] = g.Origin[d]
		b[d+3] = g.Origin[d] + g.Spacing[d]*float64(max(g.Dimensions[d]-1, 0))
	}
	return b
}

// PointIndex maps local (i,j,k) point coordinates to a flat point id.
func (g *Grid) PointIndex(i, j, k int) int {
	return i + j*g.Dimensions[0] + k*g.Dimensions[0]*g.Dimensions[1]
}

// CellIndex maps local (i,j,k) cell coordinates to a flat cell id.
func (g *Grid) CellIndex(i, j, k int) int {
	c := g.CellDimensions()
	return i + j*c[0] + k*c[0]*c[1]
}

// Block pairs a box with its grid. Grid is nil for blocks owned by
// another process.
type Block struct {
	Box  Box   `json:"box"`
	Grid *Grid `json:"-"`
}

// Owned reports whether the block's data lives in this process.
func (b *Block) Owned() bool {
	return b != nil && b.Grid != nil
}

// Level holds the blocks of one refinement level.
type Level struct {
	Blocks []*Block `json:"blocks"`
}

// Dataset is an AMR hierarchy. Metadata (boxes, origin, bounds, ratios) is
// rebuilt per analysis pass and never persisted.
type Dataset struct {
	Levels           []Level    `json:"levels"`
	Origin           [3]float64 `json:"origin"`
	Bounds           [6]float64 `json:"bounds"`
	RefinementRatios []int      `json:"refinement_ratios"`
	HasMetadata      bool       `json:"has_metadata"`
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{}
}

// NumberOfLevels returns the number of levels.
func (ds *Dataset) NumberOfLevels() int {
	return len(ds.Levels)
}

// AddGrid appends an owned grid at level, growing the hierarchy as needed,
// and returns its block.
func (ds *Dataset) AddGrid(level int, grid *Grid) *Block {
	for len(ds.Levels) <= level {
		ds.Levels = append(ds.Levels, Level{})
	}
	block := &Block{Box: Box{Level: level}, Grid: grid}
	ds.Levels[level].Blocks = append(ds.Levels[level].Blocks, block)
	ds.HasMetadata = false
	return block
}

// Block returns block index at level, or nil when out of range.
func (ds *Dataset) Block(level, index int) *Block {
	if level < 0 || level >= len(ds.Levels) {
		return nil
	}
	blocks := ds.Levels[level].Blocks
	if index < 0 || index >= len(blocks) {
		return nil
	}
	return blocks[index]
}

// NumberOfBlocks returns the number of blocks known at level.
func (ds *Dataset) NumberOfBlocks(level int) int {
	if level < 0 || level >= len(ds.Levels) {
		return 0
	}
	return len(ds.Levels[level].Blocks)
}

// OwnedBlocks returns the number of blocks with local data across all levels.
func (ds *Dataset) OwnedBlocks() int {
	n := 0
	for _, lvl := range ds.Levels {
		for _, b := range lvl.Blocks {
			if b.Owned() {
				n++
			}
		}
	}
	return n
}

// RefinementRatio returns the ratio between level and level+1.
func (ds *Dataset) RefinementRatio(level int) (int, bool) {
	if level < 0 || level >= len(ds.RefinementRatios) {
		return 0, false
	}
	return ds.RefinementRatios[level], true
}

// ShallowCopy returns a dataset sharing grids with ds but owning its own
// level and block slices.
func (ds *Dataset) ShallowCopy() *Dataset {
	out := &Dataset{
		Origin:      ds.Origin,
		Bounds:      ds.Bounds,
		HasMetadata: ds.HasMetadata,
	}
	out.RefinementRatios = append([]int(nil), ds.RefinementRatios...)
	out.Levels = make([]Level, len(ds.Levels))
	for l, lvl := range ds.Levels {
		blocks := make([]*Block, len(lvl.Blocks))
		for i, b := range lvl.Blocks {
			cp := *b
			blocks[i] = &cp
		}
		out.Levels[l].Blocks = blocks
	}
	return out
}

// EmptyBounds returns bounds that any real box union will replace.
func EmptyBounds() [6]float64 {
	inf := math.Inf(1)
	return [6]float64{inf, inf, inf, -inf, -inf, -inf}
}
