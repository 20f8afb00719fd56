package sim

import "math"

// Scalar units used throughout the simulator. All times are milliseconds,
// all sizes are megabytes, all rates are MB/s.
type (
	Time        = float64
	DataSize    = float64
	DataRate    = float64
	Area        = float64
	Percent     = float64
	ScaleFactor = float64
)

// InfTime marks an infeasible duration (zero transfer rate, dead processor).
func InfTime() Time { return math.Inf(1) }

// InfArea is the capacity of a processor without an area bound.
func InfArea() Area { return math.Inf(1) }

// InfRate is the self-to-self transfer rate (zero-cost movement).
func InfRate() DataRate { return math.Inf(1) }
