package distributed

import (
	"context"
	"fmt"

	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
	"github.com/objectfs/amrmeta/pkg/types"
)

// Serial is the single-process controller. Collectives return the caller's
// own contribution without communicating.
type Serial struct{}

var _ types.Controller = Serial{}

// Rank always returns 0
func (Serial) Rank() int { return 0 }

// Size always returns 1
func (Serial) Size() int { return 1 }

// AllReduce returns a copy of values
func (Serial) AllReduce(ctx context.Context, values []float64, op types.ReduceOp) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return reduceVectors([][]float64{values}, op)
}

// AllGather returns a one-element list holding a copy of data
func (Serial) AllGather(ctx context.Context, data []byte) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return [][]byte{append([]byte(nil), data...)}, nil
}

// Broadcast returns a copy of data; root must be 0
func (Serial) Broadcast(ctx context.Context, data []byte, root int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if root != 0 {
		return nil, amrerrors.NewError(amrerrors.ErrCodeCollective,
			fmt.Sprintf("broadcast root %d outside group of 1", root)).WithComponent("distributed")
	}
	return append([]byte(nil), data...), nil
}

// OrSerial returns ctrl, or Serial when ctrl is nil.
func OrSerial(ctrl types.Controller) types.Controller {
	if ctrl == nil {
		return Serial{}
	}
	return ctrl
}
