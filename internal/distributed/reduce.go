package distributed

import (
	"fmt"

	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
	"github.com/objectfs/amrmeta/pkg/types"
)

// reduceVectors folds per-rank vectors element-wise. Every vector must have
// the same length.
func reduceVectors(vectors [][]float64, op types.ReduceOp) ([]float64, error) {
	if len(vectors) == 0 {
		return nil, nil
	}

	n := len(vectors[0])
	for r, v := range vectors {
		if len(v) != n {
			return nil, amrerrors.NewError(amrerrors.ErrCodeCollective,
				fmt.Sprintf("allreduce length mismatch: rank 0 sent %d values, rank %d sent %d", n, r, len(v))).
				WithComponent("distributed").WithOperation(string(kindAllReduce))
		}
	}

	out := append([]float64(nil), vectors[0]...)
	for _, v := range vectors[1:] {
		for i, x := range v {
			switch op {
			case types.ReduceMin:
				if x < out[i] {
					out[i] = x
				}
			case types.ReduceMax:
				if x > out[i] {
					out[i] = x
				}
			case types.ReduceSum:
				out[i] += x
			default:
				return nil, amrerrors.NewError(amrerrors.ErrCodeCollective,
					fmt.Sprintf("unsupported reduce operator %d", int(op))).WithComponent("distributed")
			}
		}
	}
	return out, nil
}
