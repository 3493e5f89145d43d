package amr

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/amrmeta/internal/config"
	"github.com/objectfs/amrmeta/internal/distributed"
	"github.com/objectfs/amrmeta/internal/metrics"
	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
	"github.com/objectfs/amrmeta/pkg/types"
)

func TestPipeline_LogsPass(t *testing.T) {
	var buf bytes.Buffer
	p := NewPipeline(nil, zerolog.New(&buf).Level(zerolog.InfoLevel), nil)

	ds := datasetOf(nestedHierarchy())
	require.NoError(t, p.GenerateMetaData(context.Background(), ds, nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "pass completed", entry["message"])
	assert.Equal(t, "generate", entry["pass"])
	assert.Equal(t, "amr", entry["component"])
	assert.EqualValues(t, 0, entry["rank"])
	assert.EqualValues(t, 1, entry["size"])
	assert.EqualValues(t, 2, entry["levels"])
	assert.NotEmpty(t, entry["pass_id"])
}

func TestPipeline_LogsFailureCode(t *testing.T) {
	var buf bytes.Buffer
	p := NewPipeline(nil, zerolog.New(&buf), nil)

	err := p.GenerateMetaData(context.Background(), types.NewDataset(), nil)
	require.ErrorIs(t, err, amrerrors.ErrEmptyDataset)
	assert.True(t, strings.Contains(buf.String(), `"code":"EMPTY_DATASET"`), buf.String())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	assert.Equal(t, "pass failed", entry["message"])
	assert.Equal(t, "geometry", entry["category"])
	assert.Contains(t, entry["recommendation"], "No process owns a block")
	detail, ok := entry["error_detail"].(map[string]interface{})
	require.True(t, ok, "error_detail is %T", entry["error_detail"])
	assert.Equal(t, "EMPTY_DATASET", detail["code"])
}

func TestPipeline_StartAndClose(t *testing.T) {
	collector, err := metrics.NewCollector(nil)
	require.NoError(t, err)

	withMetrics := NewPipeline(nil, zerolog.Nop(), collector)
	require.NoError(t, withMetrics.Start(context.Background()))
	require.NoError(t, withMetrics.Close(context.Background()))

	without := NewPipeline(nil, zerolog.Nop(), nil)
	require.NoError(t, without.Start(context.Background()))
	require.NoError(t, without.Close(context.Background()))
}

func TestPipeline_UsesConfiguredEpsilon(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Refinement.Epsilon = 0.1
	p := NewPipeline(cfg, zerolog.Nop(), nil)

	ds := types.NewDataset()
	ds.AddGrid(0, cube([3]float64{}, 1, [3]int{4, 4, 4}))
	ds.AddGrid(1, cube([3]float64{}, 1/2.05, [3]int{4, 4, 4}))

	require.NoError(t, p.GenerateMetaData(context.Background(), ds, nil))
	assert.Equal(t, []int{2}, ds.RefinementRatios)

	strict := NewPipeline(config.NewDefault(), zerolog.Nop(), nil)
	assert.ErrorIs(t, strict.GenerateMetaData(context.Background(), ds, nil), amrerrors.ErrConsistency)
}

func TestPipeline_DistributedWithMetrics(t *testing.T) {
	collector, err := metrics.NewCollector(nil)
	require.NoError(t, err)
	p := NewPipeline(config.NewDefault(), zerolog.Nop(), collector)

	const size = 2
	datasets := partition(ghostedPair(), size)
	results := make([]*types.Dataset, size)

	err = distributed.Run(context.Background(), size, func(ctx context.Context, ctrl types.Controller) error {
		ds := datasets[ctrl.Rank()]
		if err := p.GenerateMetaData(ctx, ds, ctrl); err != nil {
			return err
		}
		out, err := p.StripGhostLayers(ctx, ds, ctrl)
		results[ctrl.Rank()] = out
		return err
	})
	require.NoError(t, err)

	for r, out := range results {
		require.NotNil(t, out, "rank %d", r)
		overlapping, err := HasPartiallyOverlappingGhostCells(out)
		require.NoError(t, err)
		assert.False(t, overlapping, "rank %d", r)
	}

	ops := collector.GetMetrics()
	assert.Equal(t, int64(size), ops["pass:generate"].Count)
	assert.Equal(t, int64(size), ops["pass:strip"].Count)
	assert.Positive(t, ops["collective:allgather"].Count)
	assert.Positive(t, ops["collective:allreduce_min"].Count)

	snap, err := collector.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, float64(size), snap[`amrmeta_blocks_total{kind="stripped"}`])
}

func TestPipeline_ShallowStripCountsBlocks(t *testing.T) {
	collector, err := metrics.NewCollector(nil)
	require.NoError(t, err)
	p := NewPipeline(nil, zerolog.Nop(), collector)

	ds := datasetOf(nestedHierarchy())
	require.NoError(t, p.GenerateMetaData(context.Background(), ds, nil))
	_, err = p.StripGhostLayers(context.Background(), ds, nil)
	require.NoError(t, err)

	snap, err := collector.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, float64(3), snap[`amrmeta_blocks_total{kind="shallow"}`])
	assert.Equal(t, float64(0), snap[`amrmeta_blocks_total{kind="stripped"}`])
}

func TestCountStripped(t *testing.T) {
	in := datasetOf(nestedHierarchy())
	out := in.ShallowCopy()
	out.Levels[1].Blocks[0].Grid = cube([3]float64{}, 1, [3]int{1, 1, 1})
	out.Levels[1].Blocks = append(out.Levels[1].Blocks, &types.Block{})

	stripped, shallow := countStripped(in, out)
	assert.Equal(t, 1, stripped)
	assert.Equal(t, 2, shallow)
}

func TestNewPipelineFromConfig(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Global.LogFormat = "json"
	cfg.Global.LogLevel = "debug"

	var buf bytes.Buffer
	p, err := NewPipelineFromConfig(cfg, &buf)
	require.NoError(t, err)
	require.NotNil(t, p.Metrics())

	ds := datasetOf(nestedHierarchy())
	require.NoError(t, p.GenerateMetaData(context.Background(), ds, nil))

	out := buf.String()
	assert.Contains(t, out, `"app":"amrmeta"`)
	assert.Contains(t, out, `"message":"metadata generated"`)
	assert.Contains(t, out, `"message":"pass completed"`)
	assert.Equal(t, int64(1), p.Metrics().GetMetrics()["pass:generate"].Count)
}

func TestNewPipelineFromConfig_MetricsDisabled(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Monitoring.Metrics.Enabled = false

	p, err := NewPipelineFromConfig(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Nil(t, p.Metrics())
}

func TestNewPipelineFromConfig_Invalid(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Refinement.Epsilon = 0

	_, err := NewPipelineFromConfig(cfg, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, amrerrors.ErrCodeConfigValidation, amrerrors.CodeOf(err))
}

func TestPipeline_RunUsesConfiguredRanks(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Distributed.Ranks = 3
	p := NewPipeline(cfg, zerolog.Nop(), nil)

	datasets := partition(nestedHierarchy(), 3)
	var seen [3]bool
	err := p.Run(context.Background(), func(ctx context.Context, ctrl types.Controller) error {
		seen[ctrl.Rank()] = true
		assert.Equal(t, 3, ctrl.Size())
		return p.GenerateMetaData(ctx, datasets[ctrl.Rank()], ctrl)
	})
	require.NoError(t, err)
	assert.Equal(t, [3]bool{true, true, true}, seen)

	for r, ds := range datasets {
		assert.Equal(t, []int{2}, ds.RefinementRatios, "rank %d", r)
		assert.Equal(t, 2, ds.NumberOfLevels(), "rank %d", r)
	}
}

func TestPipeline_RunReturnsFirstRankError(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Distributed.Ranks = 2
	p := NewPipeline(cfg, zerolog.Nop(), nil)

	err := p.Run(context.Background(), func(ctx context.Context, ctrl types.Controller) error {
		if ctrl.Rank() == 1 {
			return amrerrors.ErrConsistency
		}
		_, err := ctrl.AllReduce(ctx, []float64{1}, types.ReduceMin)
		return err
	})
	require.Error(t, err)
}
