package amr

import (
	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
	"github.com/objectfs/amrmeta/pkg/types"
)

// HasPartiallyOverlappingGhostCells reports whether the finest level holds
// a pair of boxes sharing cells in a way that coarse/fine nesting does not
// explain. Blocks of a finer level are laid out on the coarse cells of the
// level below, so a seam overlap whose width is a whole number of coarse
// cells (a multiple of the refinement ratio) is part of the layout. Any
// other overlap is a ghost layer, as is a box contained in a neighbor on
// every axis. A single-level hierarchy has no coarse layout, so any shared
// cell is a ghost layer. The scan returns at the first such pair.
//
// A zero-width box makes the test ambiguous and is reported as
// PARTIAL_OVERLAP_AMBIGUITY rather than guessed at.
func HasPartiallyOverlappingGhostCells(ds *types.Dataset) (bool, error) {
	if !ds.HasMetadata {
		return false, amrerrors.Consistency("ghost detection needs exchanged metadata").
			WithComponent("amr").WithOperation("HasPartiallyOverlappingGhostCells")
	}

	finest := ds.NumberOfLevels() - 1
	if finest < 0 {
		return false, nil
	}

	stride := 0
	if finest > 0 {
		r, ok := ds.RefinementRatio(finest - 1)
		if !ok {
			return false, amrerrors.Consistency("no refinement ratio between levels %d and %d", finest-1, finest).
				WithComponent("amr").WithOperation("HasPartiallyOverlappingGhostCells")
		}
		stride = r
	}

	blocks := ds.Levels[finest].Blocks
	for _, b := range blocks {
		if b.Box.Empty() {
			return false, degenerateBox(b.Box, "HasPartiallyOverlappingGhostCells")
		}
	}
	for i := 0; i < len(blocks); i++ {
		for j := i + 1; j < len(blocks); j++ {
			if partialOverlap(blocks[i].Box, blocks[j].Box, stride) {
				return true, nil
			}
		}
	}
	return false, nil
}

// partialOverlap applies the seam rule of HasPartiallyOverlappingGhostCells
// to one pair. stride 0 means no coarse level.
func partialOverlap(a, b types.Box, stride int) bool {
	overlap, ok := a.Intersect(b)
	if !ok {
		return false
	}
	if stride == 0 {
		return true
	}

	seam := false
	for d := 0; d < 3; d++ {
		w := overlap.CellCount(d)
		if w >= a.CellCount(d) || w >= b.CellCount(d) {
			continue
		}
		seam = true
		if w%stride != 0 {
			return true
		}
	}
	return !seam
}

// GetGhostVector returns the number of cells to remove from each side of a
// block, ordered {imin, imax, jmin, jmax, kmin, kmax}.
//
// An axis counts as a seam with a neighbor when their overlap along it is
// shorter than both boxes. The overlap width w is split between the pair:
// the lower box drops w/2 cells on its max side and the upper box drops
// w-w/2 on its min side, so the stripped boxes tile the union exactly once.
// Neighbors implying different depths for one side, or a vector removing
// every cell of an axis, are CONSISTENCY_ERRORs.
func GetGhostVector(ds *types.Dataset, level, index int) ([6]int, error) {
	var ghost [6]int

	block := ds.Block(level, index)
	if block == nil {
		return ghost, amrerrors.Consistency("no block %d at level %d", index, level).
			WithComponent("amr").WithOperation("GetGhostVector")
	}
	box := block.Box
	if box.Empty() {
		return ghost, degenerateBox(box, "GetGhostVector")
	}

	var set [6]bool
	for j, nb := range ds.Levels[level].Blocks {
		if j == index {
			continue
		}
		if nb.Box.Empty() {
			return ghost, degenerateBox(nb.Box, "GetGhostVector")
		}
		overlap, ok := box.Intersect(nb.Box)
		if !ok {
			continue
		}

		for d := 0; d < 3; d++ {
			w := overlap.CellCount(d)
			if w >= box.CellCount(d) || w >= nb.Box.CellCount(d) {
				continue
			}

			side, depth := 2*d, w-w/2
			if box.Lo[d] < nb.Box.Lo[d] {
				side, depth = 2*d+1, w/2
			}
			if set[side] && ghost[side] != depth {
				return ghost, amrerrors.Consistency("%s: neighbors disagree on ghost depth of side %d (%d vs %d)",
					box, side, ghost[side], depth).
					WithComponent("amr").WithOperation("GetGhostVector")
			}
			ghost[side], set[side] = depth, true
		}
	}

	for d := 0; d < 3; d++ {
		if ghost[2*d]+ghost[2*d+1] >= box.CellCount(d) {
			return ghost, amrerrors.Consistency("%s: ghost vector %v removes every cell on axis %d", box, ghost, d).
				WithComponent("amr").WithOperation("GetGhostVector")
		}
	}
	return ghost, nil
}

func degenerateBox(box types.Box, op string) error {
	return amrerrors.PartialOverlapAmbiguity("%s has zero width", box).
		WithComponent("amr").WithOperation(op)
}
