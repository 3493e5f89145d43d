package amr

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
	"github.com/objectfs/amrmeta/pkg/types"
)

// ComputeLevelRefinementRatio derives the integer ratio between every pair
// of adjacent levels from their grid spacing and stores it in
// ds.RefinementRatios. Every block of a level is assumed to share one
// spacing, so one representative grid per level is inspected; the ranks
// agree on it through a min-reduction. Axes whose representative grid is
// collapsed to a single point are ignored.
//
// The dataset must carry exchanged metadata. Anisotropic or non-integer
// ratios, and levels with no blocks, are CONSISTENCY_ERRORs.
func ComputeLevelRefinementRatio(ctx context.Context, ds *types.Dataset, ctrl types.Controller, eps float64) error {
	if !ds.HasMetadata {
		return amrerrors.Consistency("refinement ratios need exchanged metadata").
			WithComponent("amr").WithOperation("ComputeLevelRefinementRatio")
	}
	if eps <= 0 {
		eps = DefaultRatioEpsilon
	}

	n := ds.NumberOfLevels()
	if n < 2 {
		ds.RefinementRatios = []int{}
		return nil
	}

	// per level: spacing x, y, z, and a presence marker (0 when some rank
	// owns a block there)
	const stride = 4
	inf := math.Inf(1)
	spacing := make([]float64, stride*n)
	for i := range spacing {
		spacing[i] = inf
	}
	for l, lvl := range ds.Levels {
		for _, b := range lvl.Blocks {
			if !b.Owned() {
				continue
			}
			for d := 0; d < 3; d++ {
				if b.Grid.Dimensions[d] > 1 {
					spacing[stride*l+d] = b.Grid.Spacing[d]
				}
			}
			spacing[stride*l+3] = 0
			break
		}
	}

	if isDistributed(ctrl) {
		out, err := ctrl.AllReduce(ctx, spacing, types.ReduceMin)
		if err != nil {
			return err
		}
		spacing = out
	}

	for l := 0; l < n; l++ {
		if math.IsInf(spacing[stride*l+3], 1) {
			return amrerrors.Consistency("level %d has no blocks on any rank", l).
				WithComponent("amr").WithOperation("ComputeLevelRefinementRatio")
		}
	}

	ratios := make([]int, n-1)
	for l := 0; l < n-1; l++ {
		coarse := spacing[stride*l : stride*l+3]
		fine := spacing[stride*(l+1) : stride*(l+1)+3]

		ratio, first := math.NaN(), -1
		for d := 0; d < 3; d++ {
			if math.IsInf(coarse[d], 1) || math.IsInf(fine[d], 1) {
				continue
			}
			if fine[d] <= 0 {
				return amrerrors.Consistency("level %d has non-positive spacing %g on axis %d", l+1, fine[d], d).
					WithComponent("amr").WithOperation("ComputeLevelRefinementRatio")
			}
			r := coarse[d] / fine[d]
			if first < 0 {
				ratio, first = r, d
				continue
			}
			if math.Abs(r-ratio) > eps*math.Max(1, ratio) {
				return amrerrors.Consistency("levels %d/%d refine anisotropically: %g on axis %d, %g on axis %d",
					l, l+1, ratio, first, r, d).
					WithComponent("amr").WithOperation("ComputeLevelRefinementRatio")
			}
		}
		if first < 0 {
			return amrerrors.Consistency("levels %d/%d have no axis with more than one point", l, l+1).
				WithComponent("amr").WithOperation("ComputeLevelRefinementRatio")
		}

		rounded := math.Round(ratio)
		if math.Abs(ratio-rounded) > eps || rounded < 1 {
			return amrerrors.Consistency("levels %d/%d have non-integer refinement ratio %g", l, l+1, ratio).
				WithComponent("amr").WithOperation("ComputeLevelRefinementRatio").
				WithDetail("epsilon", eps)
		}
		ratios[l] = int(rounded)
	}

	ds.RefinementRatios = ratios
	zerolog.Ctx(ctx).Debug().Ints("ratios", ratios).Msg("refinement ratios computed")
	return nil
}
