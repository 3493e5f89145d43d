package amr

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/objectfs/amrmeta/internal/config"
	"github.com/objectfs/amrmeta/internal/distributed"
	"github.com/objectfs/amrmeta/internal/metrics"
	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
	"github.com/objectfs/amrmeta/pkg/types"
	"github.com/objectfs/amrmeta/pkg/utils"
)

// Pipeline runs the metadata passes with configuration, logging and
// metrics attached. It holds no per-dataset state and may be shared by the
// ranks of an in-process group.
type Pipeline struct {
	config  *config.Configuration
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewPipeline creates a pipeline. A nil configuration uses defaults and a
// nil collector disables metrics.
func NewPipeline(cfg *config.Configuration, logger zerolog.Logger, collector *metrics.Collector) *Pipeline {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	return &Pipeline{
		config:  cfg,
		logger:  utils.WithComponent(logger, "amr"),
		metrics: collector,
	}
}

// NewPipelineFromConfig validates cfg and builds the logger and metrics
// collector it describes. Logs go to output. The metrics endpoint is not
// served until Start is called.
func NewPipelineFromConfig(cfg *config.Configuration, output io.Writer) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := utils.ParseLogLevel(cfg.Global.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := utils.ParseLogFormat(cfg.Global.LogFormat)
	if err != nil {
		return nil, err
	}
	logger := utils.NewLogger(&utils.LoggerConfig{
		Level:  level,
		Output: output,
		Format: format,
		App:    "amrmeta",
	})

	var collector *metrics.Collector
	if cfg.Monitoring.Metrics.Enabled {
		collector, err = metrics.NewCollector(metrics.ConfigFrom(cfg.Monitoring.Metrics))
		if err != nil {
			return nil, err
		}
		collector.SetLogger(logger)
	}

	return NewPipeline(cfg, logger, collector), nil
}

// Start serves the metrics endpoint configured under monitoring.metrics
// until ctx ends. Without a collector, or with port 0, it does nothing:
// the registry is still filled and can be read through Metrics.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.metrics == nil {
		return nil
	}
	return p.metrics.Start(ctx)
}

// Close stops the metrics endpoint started by Start.
func (p *Pipeline) Close(ctx context.Context) error {
	if p.metrics == nil {
		return nil
	}
	return p.metrics.Stop(ctx)
}

// Metrics returns the pipeline's collector, nil when metrics are disabled.
func (p *Pipeline) Metrics() *metrics.Collector {
	return p.metrics
}

// GenerateMetaData rebuilds the metadata of ds. See GenerateMetaData.
func (p *Pipeline) GenerateMetaData(ctx context.Context, ds *types.Dataset, ctrl types.Controller) error {
	ctx, ctrl, done := p.begin(ctx, "generate", ctrl)
	err := GenerateMetaData(ctx, ds, ctrl, nil, p.options()...)
	done(err, func(e *zerolog.Event) {
		e.Int("levels", ds.NumberOfLevels()).Ints("ratios", ds.RefinementRatios)
	})
	return err
}

// StripGhostLayers returns a ghost-free copy of ds. See StripGhostLayers.
func (p *Pipeline) StripGhostLayers(ctx context.Context, ds *types.Dataset, ctrl types.Controller) (*types.Dataset, error) {
	ctx, ctrl, done := p.begin(ctx, "strip", ctrl)
	out, err := StripGhostLayers(ctx, ds, ctrl, p.options()...)

	stripped, shallow := 0, 0
	if err == nil {
		stripped, shallow = countStripped(ds, out)
		if p.metrics != nil {
			p.metrics.RecordBlocks(stripped, shallow)
		}
	}
	done(err, func(e *zerolog.Event) {
		e.Int("stripped", stripped).Int("shallow", shallow)
	})
	return out, err
}

// Run executes fn on every rank of an in-process group sized by the
// distributed.ranks setting. The first rank error cancels the others.
func (p *Pipeline) Run(ctx context.Context, fn distributed.RankFunc) error {
	ranks := p.config.Distributed.Ranks
	if ranks <= 0 {
		ranks = 1
	}
	group, err := distributed.NewGroup(&distributed.GroupConfig{Name: "amrmeta", Size: ranks})
	if err != nil {
		return err
	}

	p.logger.Debug().Int("ranks", ranks).Msg("starting rank group")
	err = distributed.RunGroup(ctx, group, fn)
	if err != nil {
		stats := group.GetStats()
		p.logger.Warn().Err(err).
			Int64("collectives", stats.Collectives).
			Int64("failures", stats.Failures).
			Msg("rank group failed")
	}
	return err
}

func (p *Pipeline) options() []Option {
	return []Option{
		WithRatioEpsilon(p.config.Refinement.Epsilon),
		WithMaxRecords(p.config.Exchange.MaxRecords),
	}
}

// begin tags the context logger with a fresh pass id and wraps ctrl with
// metrics. The returned func logs and records the outcome.
func (p *Pipeline) begin(ctx context.Context, pass string, ctrl types.Controller) (context.Context, types.Controller, func(error, func(*zerolog.Event))) {
	start := time.Now()
	logger := utils.WithRank(p.logger, rankOf(ctrl), groupSize(ctrl)).With().
		Str("pass", pass).
		Str("pass_id", uuid.NewString()).
		Logger()
	ctx = logger.WithContext(ctx)

	if p.metrics != nil {
		ctrl = distributed.Instrument(ctrl, p.metrics)
	}

	logger.Debug().Msg("pass started")

	return ctx, ctrl, func(err error, fields func(*zerolog.Event)) {
		elapsed := time.Since(start)
		if p.metrics != nil {
			p.metrics.RecordPass(pass, elapsed, err)
		}

		if err != nil {
			e := logger.Error().
				Err(err).
				Str("code", string(amrerrors.CodeOf(err))).
				Dur("duration", elapsed)
			var ae *amrerrors.AMRError
			if errors.As(err, &ae) {
				e = e.Str("category", string(ae.Category)).
					Str("recommendation", ae.GetRecommendation()).
					RawJSON("error_detail", []byte(ae.JSON()))
			}
			e.Msg("pass failed")
			return
		}
		e := logger.Info().Dur("duration", elapsed)
		fields(e)
		e.Msg("pass completed")
	}
}

// countStripped compares the owned grids of in and out: a grid that was
// carried over by pointer was shallow-copied.
func countStripped(in, out *types.Dataset) (stripped, shallow int) {
	seen := make(map[*types.Grid]struct{})
	for _, lvl := range in.Levels {
		for _, b := range lvl.Blocks {
			if b.Owned() {
				seen[b.Grid] = struct{}{}
			}
		}
	}
	for _, lvl := range out.Levels {
		for _, b := range lvl.Blocks {
			if !b.Owned() {
				continue
			}
			if _, ok := seen[b.Grid]; ok {
				shallow++
			} else {
				stripped++
			}
		}
	}
	return stripped, shallow
}
