package amr

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
	"github.com/objectfs/amrmeta/pkg/types"
)

// ComputeGlobalBounds returns {xmin,ymin,zmin,xmax,ymax,zmax} over every
// block owned by any rank. A nil controller, or a group of one, skips
// communication. No blocks anywhere is an EMPTY_DATASET error.
func ComputeGlobalBounds(ctx context.Context, ds *types.Dataset, ctrl types.Controller) ([6]float64, error) {
	bounds := types.EmptyBounds()
	for _, lvl := range ds.Levels {
		for _, b := range lvl.Blocks {
			if !b.Owned() {
				continue
			}
			gb := b.Grid.Bounds()
			for d := 0; d < 3; d++ {
				bounds[d] = math.Min(bounds[d], gb[d])
				bounds[d+3] = math.Max(bounds[d+3], gb[d+3])
			}
		}
	}

	if isDistributed(ctrl) {
		// one min-reduction: maxima travel negated
		in := []float64{bounds[0], bounds[1], bounds[2], -bounds[3], -bounds[4], -bounds[5]}
		out, err := ctrl.AllReduce(ctx, in, types.ReduceMin)
		if err != nil {
			return [6]float64{}, err
		}
		for d := 0; d < 3; d++ {
			bounds[d] = out[d]
			bounds[d+3] = -out[d+3]
		}
	}

	if math.IsInf(bounds[0], 1) {
		return [6]float64{}, amrerrors.EmptyDataset("no blocks on any of %d ranks", groupSize(ctrl)).
			WithComponent("amr").WithOperation("ComputeGlobalBounds")
	}

	zerolog.Ctx(ctx).Debug().Floats64("bounds", bounds[:]).Msg("global bounds computed")
	return bounds, nil
}

// ComputeDataSetOrigin returns the minimum corner of the level-0 blocks
// across all ranks. Finer levels never contribute.
func ComputeDataSetOrigin(ctx context.Context, ds *types.Dataset, ctrl types.Controller) ([3]float64, error) {
	inf := math.Inf(1)
	origin := [3]float64{inf, inf, inf}
	if ds.NumberOfLevels() > 0 {
		for _, b := range ds.Levels[0].Blocks {
			if !b.Owned() {
				continue
			}
			for d := 0; d < 3; d++ {
				origin[d] = math.Min(origin[d], b.Grid.Origin[d])
			}
		}
	}

	if isDistributed(ctrl) {
		out, err := ctrl.AllReduce(ctx, origin[:], types.ReduceMin)
		if err != nil {
			return [3]float64{}, err
		}
		copy(origin[:], out)
	}

	if math.IsInf(origin[0], 1) {
		return [3]float64{}, amrerrors.EmptyDataset("no level-0 blocks on any of %d ranks", groupSize(ctrl)).
			WithComponent("amr").WithOperation("ComputeDataSetOrigin")
	}

	zerolog.Ctx(ctx).Debug().Floats64("origin", origin[:]).Msg("dataset origin computed")
	return origin, nil
}

func isDistributed(ctrl types.Controller) bool {
	return ctrl != nil && ctrl.Size() > 1
}

func groupSize(ctrl types.Controller) int {
	if ctrl == nil {
		return 1
	}
	return ctrl.Size()
}

func rankOf(ctrl types.Controller) int {
	if ctrl == nil {
		return 0
	}
	return ctrl.Rank()
}
