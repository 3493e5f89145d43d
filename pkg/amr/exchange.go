package amr

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
	"github.com/objectfs/amrmeta/pkg/types"
	"github.com/objectfs/amrmeta/pkg/utils"
)

// CollectAMRMetaData builds the boxes of the owned blocks and exchanges them
// so every rank holds the complete hierarchy. A nil origin is resolved with
// ComputeDataSetOrigin. The boxes, levels and origin of ds change only
// after every peer buffer has decoded; on error ds is left as it was.
func CollectAMRMetaData(ctx context.Context, ds *types.Dataset, ctrl types.Controller, origin *[3]float64, opts ...Option) error {
	var o [3]float64
	if origin != nil {
		o = *origin
	} else {
		var err error
		if o, err = ComputeDataSetOrigin(ctx, ds, ctrl); err != nil {
			return err
		}
	}

	owned, err := computeOwned(o, ds, rankOf(ctrl))
	if err != nil {
		return err
	}
	levels, err := exchangeOwned(ctx, owned, ctrl, applyOptions(opts))
	if err != nil {
		return err
	}

	owned.assign()
	ds.Levels = levels
	ds.Origin = o
	return nil
}

// DistributeMetaData all-gathers the owned boxes of every rank and rebuilds
// the levels so that each rank holds every box. Blocks are ordered by rank,
// then by the sender's record order, which makes the structure identical on
// every rank. Remote blocks carry a box and no grid. The dataset is left
// untouched when any buffer fails to decode.
func DistributeMetaData(ctx context.Context, ds *types.Dataset, ctrl types.Controller, opts ...Option) error {
	levels, err := exchangeOwned(ctx, currentOwned(ds), ctrl, applyOptions(opts))
	if err != nil {
		return err
	}
	ds.Levels = levels
	return nil
}

// exchangeOwned runs the all-gather for the owned boxes and returns the
// merged levels. It does not modify the blocks it is given.
func exchangeOwned(ctx context.Context, owned *ownedMeta, ctrl types.Controller, o options) ([]types.Level, error) {
	if !isDistributed(ctrl) {
		return mergeLevels(owned, 0, nil), nil
	}

	rank := ctrl.Rank()
	payload := EncodeBoxes(owned.flatten())
	buffers, err := ctrl.AllGather(ctx, payload)
	if err != nil {
		return nil, err
	}
	if len(buffers) != ctrl.Size() {
		return nil, amrerrors.Protocol("all-gather returned %d buffers for %d ranks", len(buffers), ctrl.Size()).
			WithComponent("amr").WithOperation("DistributeMetaData").WithRank(rank)
	}

	remote := make([][]types.Box, len(buffers))
	records := 0
	for sender, buf := range buffers {
		if sender == rank {
			continue
		}
		boxes, err := decodeBoxes(buf, o.maxRecords)
		if err != nil {
			var ae *amrerrors.AMRError
			if errors.As(err, &ae) {
				return nil, ae.WithRank(rank).WithDetail("sender", sender)
			}
			return nil, err
		}
		for i, b := range boxes {
			if b.Rank != sender {
				return nil, amrerrors.Protocol("record %d from rank %d claims rank %d", i, sender, b.Rank).
					WithComponent("amr").WithOperation("DistributeMetaData").WithRank(rank)
			}
		}
		remote[sender] = boxes
		records += len(boxes)
	}

	levels := mergeLevels(owned, rank, remote)

	zerolog.Ctx(ctx).Debug().
		Str("sent", utils.FormatBytes(int64(len(payload)))).
		Int("remote_boxes", records).
		Int("levels", len(levels)).
		Msg("metadata distributed")
	return levels, nil
}

// mergeLevels builds a fresh level list from the owned blocks, placed at
// position rank, and the remote boxes of every other rank. Levels past the
// last non-empty one are dropped so all ranks agree on the level count.
func mergeLevels(owned *ownedMeta, rank int, remote [][]types.Box) []types.Level {
	n := len(owned.blocks)
	for _, boxes := range remote {
		for _, b := range boxes {
			n = max(n, b.Level+1)
		}
	}

	levels := make([]types.Level, n)
	appendOwned := func() {
		for l, blocks := range owned.blocks {
			levels[l].Blocks = append(levels[l].Blocks, blocks...)
		}
	}

	if len(remote) == 0 {
		appendOwned()
	}
	for sender, boxes := range remote {
		if sender == rank {
			appendOwned()
			continue
		}
		for _, b := range boxes {
			levels[b.Level].Blocks = append(levels[b.Level].Blocks, &types.Block{Box: b})
		}
	}

	for n > 0 && len(levels[n-1].Blocks) == 0 {
		n--
	}
	return levels[:n]
}
