package gnss

import "time"

// FixReport is one receiver fix as assembled by the serial service: the
// NAV-PVT solution plus the horizontal DOP picked up from the accompanying
// NAV-DOP message.
type FixReport struct {
	PVT            NavPVT
	HDOPHundredths uint16
}

// Ingest normalizes receiver fix reports into PositionSamples and watches
// receiver civil time for calendar-day changes. It has no side effects beyond
// the returned rollover flag and never blocks.
type Ingest struct {
	lastDay    int
	lastDaySet bool
}

// Normalize converts one fix report into a canonical sample.
//
// dayChanged is true when the report carries valid civil time whose
// day-of-month differs from the last valid day seen, and a previous valid day
// existed. Reports without valid civil time never trigger a rollover.
func (g *Ingest) Normalize(r FixReport, uptime time.Duration) (sample PositionSample, dayChanged bool) {
	civil, civilOK := r.PVT.CivilTime()

	sample = PositionSample{
		LatDeg:        r.PVT.LatDeg,
		LonDeg:        r.PVT.LonDeg,
		AltMSLM:       float64(r.PVT.HeightMSLMM) / 1000.0,
		AltEllipsoidM: float64(r.PVT.HeightEllipsoidMM) / 1000.0,

		HAccMM: r.PVT.HAccMM,
		VAccMM: r.PVT.VAccMM,

		HDOPHundredths: r.HDOPHundredths,
		PDOPHundredths: r.PVT.PDOPHundredths,

		FixType:         r.PVT.FixType,
		CarrierSolution: r.PVT.CarrierSolution,
		Satellites:      r.PVT.NumSV,

		Time: Timestamp{CivilValid: civilOK, Civil: civil, Uptime: uptime},
	}

	if civilOK {
		day := civil.Day()
		if g.lastDaySet && day != g.lastDay {
			dayChanged = true
		}
		g.lastDay = day
		g.lastDaySet = true
	}
	return sample, dayChanged
}
