package fsrs

import (
	"errors"
	"fmt"
)

// DefaultWeights are the FSRS-6 default weights.
var DefaultWeights = [21]float64{
	0.212, 1.2931, 2.3065, 8.2956, // w[0..3]  initial stability S0(G)
	6.4133, 0.8334, 3.0194, 0.001, // w[4..7]  difficulty
	1.8722, 0.1666, 0.796, 1.4835, // w[8..11] recall stability
	0.0614, 0.2629, 1.6483, 0.6014, // w[12..15] forget stability
	1.8729, 0.5425, 0.0912, 0.0658, // w[16..19] easy bonus, short-term
	0.1542, // w[20] decay
}

var lowerBounds = [21]float64{
	0.001, 0.001, 0.001, 0.001,
	1.0, 0.001, 0.001, 0.001,
	0.0, 0.0, 0.001, 0.001,
	0.001, 0.001, 0.0, 0.0,
	1.0, 0.0, 0.0, 0.0,
	0.1,
}

var upperBounds = [21]float64{
	100.0, 100.0, 100.0, 100.0,
	10.0, 4.0, 4.0, 0.75,
	4.5, 0.8, 3.5, 5.0,
	0.25, 0.9, 4.0, 1.0,
	6.0, 2.0, 2.0, 0.8,
	0.8,
}

var ErrInvalidParams = errors.New("fsrs: invalid parameters")

// Params holds the scheduler configuration. It is built once at startup
// and never changes afterwards.
type Params struct {
	Weights          [21]float64
	DesiredRetention float64 // target recall probability at the due date
	MinInterval      int     // days
	MaxInterval      int     // days
}

// DefaultParams returns the FSRS-6 weights with a 90% retention target and
// intervals between 1 and 256 days.
func DefaultParams() Params {
	return Params{
		Weights:          DefaultWeights,
		DesiredRetention: 0.9,
		MinInterval:      1,
		MaxInterval:      256,
	}
}

// Validate checks every weight against its bounds and the interval range.
func (p Params) Validate() error {
	for i, w := range p.Weights {
		if w < lowerBounds[i] || w > upperBounds[i] {
			return fmt.Errorf("%w: w[%d] = %f, bounds [%f, %f]",
				ErrInvalidParams, i, w, lowerBounds[i], upperBounds[i])
		}
	}
	if p.DesiredRetention <= 0 || p.DesiredRetention >= 1 {
		return fmt.Errorf("%w: desired retention %f out of range (0, 1)", ErrInvalidParams, p.DesiredRetention)
	}
	if p.MinInterval < 1 || p.MaxInterval < p.MinInterval {
		return fmt.Errorf("%w: interval range [%d, %d]", ErrInvalidParams, p.MinInterval, p.MaxInterval)
	}
	return nil
}
