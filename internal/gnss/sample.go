package gnss

import (
	"fmt"
	"time"
)

// Carrier-solution classes reported by the receiver (NAV-PVT flags bits 6..7).
const (
	CarrierNone  uint8 = 0
	CarrierFloat uint8 = 1
	CarrierFixed uint8 = 2
)

// CarrierName returns a short label for a carrier-solution class.
func CarrierName(c uint8) string {
	switch c {
	case CarrierFixed:
		return "fixed"
	case CarrierFloat:
		return "float"
	default:
		return "standard"
	}
}

// Timestamp is the time attached to a sample: receiver civil time (UTC) when
// the receiver has a resolved date/time, plus the rover uptime which serves as
// a monotonic fallback when it does not.
type Timestamp struct {
	CivilValid bool
	Civil      time.Time
	Uptime     time.Duration
}

// String renders the timestamp the way the log files expect it:
// "YYYY-MM-DD HH:MM:SS" for civil time, "MILLIS_<uptime-ms>" otherwise.
func (t Timestamp) String() string {
	if t.CivilValid {
		return t.Civil.UTC().Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("MILLIS_%d", t.Uptime.Milliseconds())
}

// PositionSample is one resolved fix, normalized from a receiver fix report.
//
// Heights are independent fields; geoid separation is derived and never
// stored.
type PositionSample struct {
	LatDeg        float64
	LonDeg        float64
	AltMSLM       float64
	AltEllipsoidM float64

	HAccMM uint32
	VAccMM uint32

	// DOP values are kept in hundredths, matching the receiver wire format.
	HDOPHundredths uint16
	PDOPHundredths uint16

	FixType         uint8
	CarrierSolution uint8
	Satellites      uint8

	Time Timestamp
}

// GeoidSeparationM is the ellipsoidal height minus the orthometric height.
func (s PositionSample) GeoidSeparationM() float64 {
	return s.AltEllipsoidM - s.AltMSLM
}
