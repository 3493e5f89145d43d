/*
Package amr builds and maintains the metadata of adaptive mesh refinement
datasets whose blocks may be spread over the ranks of a process group, and
removes the ghost layers that neighboring blocks duplicate.

# Passes

Functions run in dependency order, leaves first:

	ComputeGlobalBounds          union of owned bounds, min/max over ranks
	ComputeDataSetOrigin         min corner of level 0 over ranks
	ComputeLocalMetaData         cell-centered index box per owned block
	DistributeMetaData           all-gather of boxes, atomic merge
	ComputeLevelRefinementRatio  integer spacing ratio between levels
	HasPartiallyOverlappingGhostCells
	GetGhostVector / StripGhostLayersFromGrid / StripGhostLayers

GenerateMetaData chains the first five and leaves the dataset with
HasMetadata set. Every function taking a types.Controller is collective:
all ranks of the group must call it in the same order. A nil controller
runs single-process without communicating.

# Index Space

Boxes are cell-centered and inclusive. For an owned grid:

	lo = floor((grid.Origin - ds.Origin) / grid.Spacing)
	hi = lo + cellDims - 1

so the children of coarse cell i at ratio r are cells r*i .. r*i+r-1.

# Metadata Exchange

Each rank serializes its owned boxes:

	int32 count
	count x { int32 level, rank, lo0, lo1, lo2, hi0, hi1, hi2 }

in the host byte order. Mixed-endian groups are not supported. Decoded
buffers are validated (length, count, level, sender rank) and merged into
fresh level slices that replace the old ones only once every buffer is
valid. Blocks end up ordered by owning rank, then by the owner's level and
block order, identically on every rank.

# Ghost Layers

Two same-level boxes that share cells carry ghost layers. GetGhostVector
splits each overlap between the pair so that the stripped boxes tile their
union; zero-width boxes make the split ambiguous and fail with
PARTIAL_OVERLAP_AMBIGUITY. HasPartiallyOverlappingGhostCells looks at the
finest level only and accepts seams that are a whole number of coarse cells
wide. StripGhostLayers shallow-copies a dataset the detector passes and
otherwise rebuilds stripped grids and regenerates metadata.

# Pipeline

Pipeline wraps GenerateMetaData and StripGhostLayers with a per-pass
zerolog logger (pass, pass_id, rank, size) carried in the context,
Prometheus metrics through distributed.Instrument, and the configured
ratio epsilon and record limit:

	p := amr.NewPipeline(cfg, logger, collector)
	err := distributed.Run(ctx, 4, func(ctx context.Context, ctrl types.Controller) error {
		ds := datasets[ctrl.Rank()]
		if err := p.GenerateMetaData(ctx, ds, ctrl); err != nil {
			return err
		}
		stripped[ctrl.Rank()], err = p.StripGhostLayers(ctx, ds, ctrl)
		return err
	})
*/
package amr
