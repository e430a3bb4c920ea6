package mixer

import "math"

// compressor is a soft-knee dynamics stage on the master bus. Its job is
// absorbing summation overflow when several sources are unmuted at once;
// the parameters are fixed, not user-facing.
type compressor struct {
	envelope float64 // tracked level in dBFS
}

const (
	compThresholdDB = -10.0
	compRatio       = 4.0
	compKneeDB      = 6.0
	compAttackMs    = 5.0
	compReleaseMs   = 50.0
)

func newCompressor() *compressor {
	return &compressor{envelope: -96.0}
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

func linearToDB(v float64) float64 {
	if v <= 0 {
		return -96.0
	}
	return 20 * math.Log10(v)
}

// gainFor computes the gain reduction for one frame given its peak,
// using a quadratic soft knee around the threshold.
func (c *compressor) gainFor(peak float64, frameMs float64) float64 {
	level := linearToDB(peak / 32768.0)

	// Attack/release smoothing of the detected level
	var coeff float64
	if level > c.envelope {
		coeff = math.Exp(-frameMs / compAttackMs)
	} else {
		coeff = math.Exp(-frameMs / compReleaseMs)
	}
	c.envelope = coeff*c.envelope + (1-coeff)*level

	over := c.envelope - compThresholdDB
	var reductionDB float64
	switch {
	case over <= -compKneeDB/2:
		reductionDB = 0
	case over >= compKneeDB/2:
		reductionDB = over * (1 - 1/compRatio)
	default:
		// Inside the knee
		t := over + compKneeDB/2
		reductionDB = (1 - 1/compRatio) * t * t / (2 * compKneeDB)
	}
	return dbToLinear(-reductionDB)
}
