package amr

import (
	"context"

	"github.com/rs/zerolog"

	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
	"github.com/objectfs/amrmeta/pkg/types"
)

// StripGhostLayersFromGrid removes ghost cells from grid. With an all-zero
// vector the same grid is returned and stripped is false. Otherwise a new
// grid covering the real extent is allocated and the point and cell fields
// inside that extent are copied over.
func StripGhostLayersFromGrid(grid *types.Grid, ghost [6]int) (*types.Grid, bool, error) {
	if ghost == ([6]int{}) {
		return grid, false, nil
	}

	var realExtent [6]int
	var dims [3]int
	origin := grid.Origin
	for d := 0; d < 3; d++ {
		gmin, gmax := ghost[2*d], ghost[2*d+1]
		if gmin < 0 || gmax < 0 {
			return nil, false, amrerrors.Consistency("negative ghost vector %v", ghost).
				WithComponent("amr").WithOperation("StripGhostLayersFromGrid")
		}
		if grid.Dimensions[d] <= 1 {
			if gmin != 0 || gmax != 0 {
				return nil, false, amrerrors.Consistency("ghost vector %v strips collapsed axis %d", ghost, d).
					WithComponent("amr").WithOperation("StripGhostLayersFromGrid")
			}
			dims[d] = grid.Dimensions[d]
			continue
		}

		lo, hi := gmin, grid.Dimensions[d]-1-gmax
		if hi <= lo {
			return nil, false, amrerrors.Consistency("ghost vector %v leaves no cells on axis %d of a %d-point grid",
				ghost, d, grid.Dimensions[d]).
				WithComponent("amr").WithOperation("StripGhostLayersFromGrid")
		}
		realExtent[2*d], realExtent[2*d+1] = lo, hi
		dims[d] = hi - lo + 1
		origin[d] += float64(lo) * grid.Spacing[d]
	}

	stripped := types.NewGrid(origin, grid.Spacing, dims)
	if err := CopyFieldsWithinRealExtent(realExtent, grid, stripped); err != nil {
		return nil, false, err
	}
	return stripped, true, nil
}

// CopyFieldsWithinRealExtent copies the point and cell tuples of ghosted
// that lie inside realExtent onto stripped. realExtent is an inclusive
// point range {imin, imax, jmin, jmax, kmin, kmax} in ghosted's local
// indices; the cell range along an axis ends one before its point range.
func CopyFieldsWithinRealExtent(realExtent [6]int, ghosted, stripped *types.Grid) error {
	if stripped.PointData == nil {
		stripped.PointData = types.NewFieldData()
	}
	if stripped.CellData == nil {
		stripped.CellData = types.NewFieldData()
	}
	stripped.PointData.Reserve(stripped.NumberOfPoints())
	stripped.CellData.Reserve(stripped.NumberOfCells())

	if ghosted.PointData != nil {
		for k := realExtent[4]; k <= realExtent[5]; k++ {
			for j := realExtent[2]; j <= realExtent[3]; j++ {
				for i := realExtent[0]; i <= realExtent[1]; i++ {
					src := ghosted.PointIndex(i, j, k)
					dst := stripped.PointIndex(i-realExtent[0], j-realExtent[2], k-realExtent[4])
					if err := CopyFieldData(stripped.PointData, dst, ghosted.PointData, src); err != nil {
						return err
					}
				}
			}
		}
	}

	if ghosted.CellData != nil {
		var lo, hi [3]int
		for d := 0; d < 3; d++ {
			lo[d], hi[d] = realExtent[2*d], realExtent[2*d+1]-1
			if ghosted.Dimensions[d] <= 1 {
				lo[d], hi[d] = 0, 0
			}
		}
		for k := lo[2]; k <= hi[2]; k++ {
			for j := lo[1]; j <= hi[1]; j++ {
				for i := lo[0]; i <= hi[0]; i++ {
					src := ghosted.CellIndex(i, j, k)
					dst := stripped.CellIndex(i-lo[0], j-lo[1], k-lo[2])
					if err := CopyFieldData(stripped.CellData, dst, ghosted.CellData, src); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// CopyFieldData copies the tuple at sourceIdx of every source array to
// targetIdx of the target array with the same name. Missing target arrays
// are created with the source's type and width, sized to target.Reserved().
func CopyFieldData(target *types.FieldData, targetIdx int, source *types.FieldData, sourceIdx int) error {
	for _, arr := range source.Arrays() {
		if sourceIdx < 0 || sourceIdx >= arr.NumTuples() {
			return amrerrors.Consistency("source index %d outside array %q of %d tuples",
				sourceIdx, arr.Name, arr.NumTuples()).
				WithComponent("amr").WithOperation("CopyFieldData")
		}

		dst := target.GetArray(arr.Name)
		if dst == nil {
			dst = types.NewDataArray(arr.Name, arr.Type, arr.NumComponents, target.Reserved())
			target.AddArray(dst)
		}
		if err := dst.SetTuple(targetIdx, arr.Tuple(sourceIdx)); err != nil {
			return amrerrors.Consistency("copy into array %q failed", arr.Name).
				WithComponent("amr").WithOperation("CopyFieldData").WithCause(err)
		}
	}
	return nil
}

// StripGhostLayers returns a ghost-free copy of ghosted, which must carry
// exchanged metadata. When no level has overlapping boxes every block is
// shallow-copied. Otherwise each owned block is stripped by its ghost
// vector and metadata is regenerated for the result against the ghosted
// origin, so box indices stay in the same index space.
//
// Every rank sees the same boxes, so every rank takes the same branch and
// issues the same collectives.
func StripGhostLayers(ctx context.Context, ghosted *types.Dataset, ctrl types.Controller, opts ...Option) (*types.Dataset, error) {
	if !ghosted.HasMetadata {
		return nil, amrerrors.Consistency("stripping ghost layers needs exchanged metadata").
			WithComponent("amr").WithOperation("StripGhostLayers")
	}
	logger := zerolog.Ctx(ctx)

	overlapping, err := HasPartiallyOverlappingGhostCells(ghosted)
	if err != nil {
		return nil, err
	}
	if !overlapping {
		logger.Debug().Msg("no ghost overlap, shallow copy")
		return ghosted.ShallowCopy(), nil
	}

	out := types.NewDataset()
	stripped := 0
	for l, lvl := range ghosted.Levels {
		for i, b := range lvl.Blocks {
			if !b.Owned() {
				continue
			}
			ghost, err := GetGhostVector(ghosted, l, i)
			if err != nil {
				return nil, err
			}
			grid, changed, err := StripGhostLayersFromGrid(b.Grid, ghost)
			if err != nil {
				return nil, err
			}
			if changed {
				stripped++
				logger.Trace().Stringer("box", b.Box).Ints("ghost", ghost[:]).Msg("block stripped")
			}
			out.AddGrid(l, grid)
		}
	}
	// ranks without blocks at the finest levels still need the level count
	for out.NumberOfLevels() < ghosted.NumberOfLevels() {
		out.Levels = append(out.Levels, types.Level{})
	}

	origin := ghosted.Origin
	if err := GenerateMetaData(ctx, out, ctrl, &origin, opts...); err != nil {
		return nil, err
	}

	logger.Debug().Int("stripped", stripped).Int("owned", out.OwnedBlocks()).Msg("ghost layers stripped")
	return out, nil
}
