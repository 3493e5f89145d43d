package distributed

import (
	"context"
	"time"

	"github.com/objectfs/amrmeta/pkg/types"
)

// instrumented reports every collective of the wrapped controller.
type instrumented struct {
	inner   types.Controller
	metrics types.MetricsCollector
}

// Instrument wraps ctrl so that each collective is recorded on metrics.
// A nil metrics collector returns ctrl unchanged.
func Instrument(ctrl types.Controller, metrics types.MetricsCollector) types.Controller {
	if metrics == nil || ctrl == nil {
		return ctrl
	}
	return &instrumented{inner: ctrl, metrics: metrics}
}

func (c *instrumented) Rank() int { return c.inner.Rank() }
func (c *instrumented) Size() int { return c.inner.Size() }

func (c *instrumented) AllReduce(ctx context.Context, values []float64, op types.ReduceOp) ([]float64, error) {
	start := time.Now()
	out, err := c.inner.AllReduce(ctx, values, op)
	c.metrics.RecordCollective("allreduce_"+op.String(), 8*len(values), time.Since(start), err)
	return out, err
}

func (c *instrumented) AllGather(ctx context.Context, data []byte) ([][]byte, error) {
	start := time.Now()
	out, err := c.inner.AllGather(ctx, data)
	received := 0
	for _, b := range out {
		received += len(b)
	}
	c.metrics.RecordCollective("allgather", received, time.Since(start), err)
	return out, err
}

func (c *instrumented) Broadcast(ctx context.Context, data []byte, root int) ([]byte, error) {
	start := time.Now()
	out, err := c.inner.Broadcast(ctx, data, root)
	c.metrics.RecordCollective("broadcast", len(out), time.Since(start), err)
	return out, err
}
