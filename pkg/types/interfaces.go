package types

import (
	"context"
	"time"
)

// ReduceOp is an element-wise reduction operator.
type ReduceOp int

const (
	ReduceMin ReduceOp = iota
	ReduceMax
	ReduceSum
)

func (op ReduceOp) String() string {
	switch op {
	case ReduceMin:
		return "min"
	case ReduceMax:
		return "max"
	case ReduceSum:
		return "sum"
	default:
		return "unknown"
	}
}

// Controller is the collective-communication contract of a process group.
// Every collective blocks until all ranks of the group have contributed and
// must be called by every rank in the same order.
type Controller interface {
	// Rank returns this process's index in [0, Size()).
	Rank() int
	// Size returns the number of processes in the group.
	Size() int

	// AllReduce combines values element-wise across ranks and returns the
	// result on every rank. All ranks must pass slices of equal length.
	AllReduce(ctx context.Context, values []float64, op ReduceOp) ([]float64, error)
	// AllGather returns every rank's buffer, indexed by rank.
	AllGather(ctx context.Context, data []byte) ([][]byte, error)
	// Broadcast returns root's buffer on every rank.
	Broadcast(ctx context.Context, data []byte, root int) ([]byte, error)
}

// MetricsCollector defines the metrics surface used by the metadata passes.
type MetricsCollector interface {
	RecordCollective(op string, bytes int, duration time.Duration, err error)
	RecordPass(pass string, duration time.Duration, err error)
	RecordBlocks(stripped, shallow int)
}
