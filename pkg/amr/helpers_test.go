package amr

import (
	"context"

	"github.com/objectfs/amrmeta/pkg/types"
)

// cube returns an isotropic grid with the given cell counts.
func cube(origin [3]float64, h float64, cells [3]int) *types.Grid {
	return types.NewGrid(origin, [3]float64{h, h, h}, [3]int{cells[0] + 1, cells[1] + 1, cells[2] + 1})
}

type placedGrid struct {
	level int
	grid  *types.Grid
}

// nestedHierarchy is a ghost-free two-level hierarchy:
//
//	L0: [0..3]^3 and [4..7]x[0..3]x[0..3] at h=1
//	L1: [2..5]^3 at h=0.5
func nestedHierarchy() []placedGrid {
	return []placedGrid{
		{0, cube([3]float64{0, 0, 0}, 1, [3]int{4, 4, 4})},
		{0, cube([3]float64{4, 0, 0}, 1, [3]int{4, 4, 4})},
		{1, cube([3]float64{1, 1, 1}, 0.5, [3]int{4, 4, 4})},
	}
}

// ghostedPair is one level with two blocks whose x ranges share two cells:
// [0..5] and [4..9], both [0..3] in y and z.
func ghostedPair() []placedGrid {
	a := cube([3]float64{0, 0, 0}, 1, [3]int{6, 4, 4})
	b := cube([3]float64{4, 0, 0}, 1, [3]int{6, 4, 4})
	fillIndexFields(a, 0)
	fillIndexFields(b, 1000)
	return []placedGrid{{0, a}, {0, b}}
}

// fillIndexFields stores offset+flat index in a scalar point array and a
// scalar cell array, plus a two-component cell array.
func fillIndexFields(g *types.Grid, offset float64) {
	pts := types.NewDataArray("pid", types.Float64, 1, g.NumberOfPoints())
	for i := range pts.Values {
		pts.Values[i] = offset + float64(i)
	}
	g.PointData.AddArray(pts)

	cells := types.NewDataArray("cid", types.Int32, 1, g.NumberOfCells())
	vec := types.NewDataArray("vec", types.Float32, 2, g.NumberOfCells())
	for i := 0; i < g.NumberOfCells(); i++ {
		cells.Values[i] = offset + float64(i)
		vec.Values[2*i] = float64(i)
		vec.Values[2*i+1] = -float64(i)
	}
	g.CellData.AddArray(cells)
	g.CellData.AddArray(vec)
}

// partition deals grids round-robin over size ranks.
func partition(grids []placedGrid, size int) []*types.Dataset {
	out := make([]*types.Dataset, size)
	for r := range out {
		out[r] = types.NewDataset()
	}
	for i, pg := range grids {
		out[i%size].AddGrid(pg.level, pg.grid)
	}
	return out
}

func datasetOf(grids []placedGrid) *types.Dataset {
	return partition(grids, 1)[0]
}

// boxesOf returns the boxes of every level in block order.
func boxesOf(ds *types.Dataset) [][]types.Box {
	out := make([][]types.Box, ds.NumberOfLevels())
	for l, lvl := range ds.Levels {
		out[l] = []types.Box{}
		for _, b := range lvl.Blocks {
			out[l] = append(out[l], b.Box)
		}
	}
	return out
}

// scriptedController is a fake group member whose all-gather returns
// canned peer buffers.
type scriptedController struct {
	rank, size int
	peers      [][]byte
	err        error
}

func (c *scriptedController) Rank() int { return c.rank }
func (c *scriptedController) Size() int { return c.size }

func (c *scriptedController) AllReduce(ctx context.Context, values []float64, op types.ReduceOp) ([]float64, error) {
	if c.err != nil {
		return nil, c.err
	}
	return append([]float64(nil), values...), nil
}

func (c *scriptedController) AllGather(ctx context.Context, data []byte) ([][]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]byte, len(c.peers))
	copy(out, c.peers)
	if c.rank < len(out) {
		out[c.rank] = data
	}
	return out, nil
}

func (c *scriptedController) Broadcast(ctx context.Context, data []byte, root int) ([]byte, error) {
	return data, c.err
}
