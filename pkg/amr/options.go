package amr

// DefaultRatioEpsilon is the tolerance used when a refinement ratio is
// rounded to an integer.
const DefaultRatioEpsilon = 1e-6

// DefaultMaxRecords bounds the number of boxes accepted in one peer buffer.
const DefaultMaxRecords = 1 << 20

// Option tunes a metadata pass.
type Option func(*options)

type options struct {
	epsilon    float64
	maxRecords int
}

// WithRatioEpsilon sets the tolerance for refinement ratio rounding and
// axis agreement. Non-positive values keep the default.
func WithRatioEpsilon(eps float64) Option {
	return func(o *options) {
		if eps > 0 {
			o.epsilon = eps
		}
	}
}

// WithMaxRecords caps the record count a peer buffer may declare.
// Non-positive values keep the default.
func WithMaxRecords(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRecords = n
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{
		epsilon:    DefaultRatioEpsilon,
		maxRecords: DefaultMaxRecords,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
