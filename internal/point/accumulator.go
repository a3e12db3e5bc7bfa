// Package point accumulates position samples for one logging session into
// running sums and extrema, and exposes the averages written to the
// averaged-point log.
package point

import (
	"rtkrover/internal/gnss"
)

// Unassigned is the point-number sentinel used outside an open session and
// after a day rollover.
const Unassigned = 0

// Accumulator holds one open or closed logging session. All average accessors
// are defined as sum/count and return 0.0 for an empty accumulator.
type Accumulator struct {
	pointNumber int

	count         int
	fixedCount    int
	floatCount    int
	standardCount int

	sumLat       float64
	sumLon       float64
	sumMSL       float64
	sumEllipsoid float64
	sumHAccMM    float64
	sumVAccMM    float64
	sumHDOP      float64 // hundredths
	sumPDOP      float64 // hundredths
	sumSats      float64

	bestHAccMM         uint32
	bestVAccMM         uint32
	bestHDOPHundredths uint16
	bestSet            bool

	first    gnss.Timestamp
	firstSet bool
	last     gnss.Timestamp
}

// Reset zeroes all sums, counts, extrema and timestamps and marks the point
// number unassigned. Idempotent.
func (a *Accumulator) Reset() {
	*a = Accumulator{}
}

// SetPointNumber assigns the session's point number.
func (a *Accumulator) SetPointNumber(n int) { a.pointNumber = n }

// PointNumber returns the assigned point number (Unassigned outside a session).
func (a *Accumulator) PointNumber() int { return a.pointNumber }

// Add folds one accepted sample into the running state.
func (a *Accumulator) Add(s gnss.PositionSample) {
	a.count++
	switch s.CarrierSolution {
	case gnss.CarrierFixed:
		a.fixedCount++
	case gnss.CarrierFloat:
		a.floatCount++
	default:
		a.standardCount++
	}

	a.sumLat += s.LatDeg
	a.sumLon += s.LonDeg
	a.sumMSL += s.AltMSLM
	a.sumEllipsoid += s.AltEllipsoidM
	a.sumHAccMM += float64(s.HAccMM)
	a.sumVAccMM += float64(s.VAccMM)
	a.sumHDOP += float64(s.HDOPHundredths)
	a.sumPDOP += float64(s.PDOPHundredths)
	a.sumSats += float64(s.Satellites)

	if !a.bestSet {
		a.bestHAccMM = s.HAccMM
		a.bestVAccMM = s.VAccMM
		a.bestHDOPHundredths = s.HDOPHundredths
		a.bestSet = true
	} else {
		if s.HAccMM < a.bestHAccMM {
			a.bestHAccMM = s.HAccMM
		}
		if s.VAccMM < a.bestVAccMM {
			a.bestVAccMM = s.VAccMM
		}
		if s.HDOPHundredths < a.bestHDOPHundredths {
			a.bestHDOPHundredths = s.HDOPHundredths
		}
	}

	if !a.firstSet {
		a.first = s.Time
		a.firstSet = true
	}
	a.last = s.Time
}

func (a *Accumulator) Count() int         { return a.count }
func (a *Accumulator) FixedCount() int    { return a.fixedCount }
func (a *Accumulator) FloatCount() int    { return a.floatCount }
func (a *Accumulator) StandardCount() int { return a.standardCount }

// FirstTime is the timestamp of the session's first accepted sample.
func (a *Accumulator) FirstTime() gnss.Timestamp { return a.first }

// LastTime is the timestamp of the session's most recent accepted sample.
func (a *Accumulator) LastTime() gnss.Timestamp { return a.last }

func (a *Accumulator) avg(sum float64) float64 {
	if a.count == 0 {
		return 0.0
	}
	return sum / float64(a.count)
}

func (a *Accumulator) AvgLatDeg() float64        { return a.avg(a.sumLat) }
func (a *Accumulator) AvgLonDeg() float64        { return a.avg(a.sumLon) }
func (a *Accumulator) AvgAltMSLM() float64       { return a.avg(a.sumMSL) }
func (a *Accumulator) AvgAltEllipsoidM() float64 { return a.avg(a.sumEllipsoid) }
func (a *Accumulator) AvgHAccMM() float64        { return a.avg(a.sumHAccMM) }
func (a *Accumulator) AvgVAccMM() float64        { return a.avg(a.sumVAccMM) }
func (a *Accumulator) AvgSatellites() float64    { return a.avg(a.sumSats) }

// AvgHDOP and AvgPDOP convert the hundredths sums back to plain DOP values.
func (a *Accumulator) AvgHDOP() float64 { return a.avg(a.sumHDOP) / 100.0 }
func (a *Accumulator) AvgPDOP() float64 { return a.avg(a.sumPDOP) / 100.0 }

// GeoidSeparationM is the average ellipsoidal height minus the average
// orthometric height. 0.0 when empty.
func (a *Accumulator) GeoidSeparationM() float64 {
	return a.avg(a.sumEllipsoid - a.sumMSL)
}

// FixedPercentage is the share (0..100) of samples with an RTK-fixed carrier
// solution. 0.0 when empty.
func (a *Accumulator) FixedPercentage() float64 {
	if a.count == 0 {
		return 0.0
	}
	return float64(a.fixedCount) * 100.0 / float64(a.count)
}

// Best (minimum) observed values over the session; 0 when empty.
func (a *Accumulator) BestHAccMM() uint32 { return a.bestHAccMM }
func (a *Accumulator) BestVAccMM() uint32 { return a.bestVAccMM }
func (a *Accumulator) BestHDOP() float64  { return float64(a.bestHDOPHundredths) / 100.0 }
