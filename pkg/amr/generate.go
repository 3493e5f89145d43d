package amr

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/objectfs/amrmeta/pkg/types"
)

// GenerateMetaData rebuilds all metadata of ds: global bounds, the exchanged
// box hierarchy and the refinement ratios. origin may be nil to derive it
// from level 0. On success ds.HasMetadata is true.
func GenerateMetaData(ctx context.Context, ds *types.Dataset, ctrl types.Controller, origin *[3]float64, opts ...Option) error {
	o := applyOptions(opts)
	ds.HasMetadata = false

	bounds, err := ComputeGlobalBounds(ctx, ds, ctrl)
	if err != nil {
		return err
	}
	if err := CollectAMRMetaData(ctx, ds, ctrl, origin, opts...); err != nil {
		return err
	}
	ds.Bounds = bounds
	ds.HasMetadata = true

	if err := ComputeLevelRefinementRatio(ctx, ds, ctrl, o.epsilon); err != nil {
		ds.HasMetadata = false
		return err
	}

	zerolog.Ctx(ctx).Debug().
		Int("levels", ds.NumberOfLevels()).
		Int("owned", ds.OwnedBlocks()).
		Ints("ratios", ds.RefinementRatios).
		Msg("metadata generated")
	return nil
}
