package point

import (
	"math"
	"testing"
	"time"

	"rtkrover/internal/gnss"
)

func sample(lat, msl, ell float64, carr uint8) gnss.PositionSample {
	return gnss.PositionSample{
		LatDeg:          lat,
		LonDeg:          -lat / 2,
		AltMSLM:         msl,
		AltEllipsoidM:   ell,
		HAccMM:          20,
		VAccMM:          30,
		HDOPHundredths:  95,
		PDOPHundredths:  182,
		CarrierSolution: carr,
		Satellites:      17,
		Time:            gnss.Timestamp{Uptime: time.Duration(lat) * time.Second},
	}
}

func almostEq(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAccumulatorAverages(t *testing.T) {
	var a Accumulator
	a.SetPointNumber(7)

	a.Add(sample(10.0, 100, 140, gnss.CarrierFixed))
	a.Add(sample(10.1, 101, 141, gnss.CarrierFixed))
	a.Add(sample(10.2, 102, 142, gnss.CarrierFixed))

	if a.PointNumber() != 7 {
		t.Fatalf("pointNumber=%d want 7", a.PointNumber())
	}
	if a.Count() != 3 {
		t.Fatalf("count=%d want 3", a.Count())
	}
	if !almostEq(a.AvgLatDeg(), 10.1) {
		t.Fatalf("avgLat=%v want 10.1", a.AvgLatDeg())
	}
	if !almostEq(a.AvgAltMSLM(), 101.0) {
		t.Fatalf("avgMSL=%v want 101.0", a.AvgAltMSLM())
	}
	if !almostEq(a.AvgAltEllipsoidM(), 141.0) {
		t.Fatalf("avgEllipsoid=%v want 141.0", a.AvgAltEllipsoidM())
	}
	if !almostEq(a.GeoidSeparationM(), 40.0) {
		t.Fatalf("geoidSep=%v want 40.0", a.GeoidSeparationM())
	}
	if !almostEq(a.FixedPercentage(), 100.0) {
		t.Fatalf("fixed%%=%v want 100.0", a.FixedPercentage())
	}
	if !almostEq(a.AvgHDOP(), 0.95) || !almostEq(a.AvgPDOP(), 1.82) {
		t.Fatalf("avg dop=%v/%v want 0.95/1.82", a.AvgHDOP(), a.AvgPDOP())
	}
}

func TestGeoidSeparationMatchesAverageDifference(t *testing.T) {
	var a Accumulator
	a.Add(sample(1, 10.25, 52.75, gnss.CarrierFloat))
	a.Add(sample(2, 11.5, 51.125, gnss.CarrierNone))
	a.Add(sample(3, 9.875, 50.5, gnss.CarrierFixed))

	want := a.AvgAltEllipsoidM() - a.AvgAltMSLM()
	if got := a.GeoidSeparationM(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("geoidSep=%v want %v", got, want)
	}
}

func TestEmptyAccumulatorReturnsZeroes(t *testing.T) {
	var a Accumulator
	for name, got := range map[string]float64{
		"avgLat":    a.AvgLatDeg(),
		"avgMSL":    a.AvgAltMSLM(),
		"avgHAcc":   a.AvgHAccMM(),
		"avgHDOP":   a.AvgHDOP(),
		"geoidSep":  a.GeoidSeparationM(),
		"fixedPct":  a.FixedPercentage(),
		"bestHDOP":  a.BestHDOP(),
		"avgSats":   a.AvgSatellites(),
	} {
		if got != 0.0 {
			t.Fatalf("%s=%v want 0.0 on empty accumulator", name, got)
		}
	}
}

func TestCarrierCountsPartitionCount(t *testing.T) {
	var a Accumulator
	carrs := []uint8{
		gnss.CarrierFixed, gnss.CarrierFloat, gnss.CarrierNone,
		gnss.CarrierFixed, gnss.CarrierFixed, gnss.CarrierNone,
	}
	for i, c := range carrs {
		a.Add(sample(float64(i), 1, 2, c))
	}
	if a.FixedCount()+a.FloatCount()+a.StandardCount() != a.Count() {
		t.Fatalf("counts %d+%d+%d != %d",
			a.FixedCount(), a.FloatCount(), a.StandardCount(), a.Count())
	}
	if a.FixedCount() != 3 || a.FloatCount() != 1 || a.StandardCount() != 2 {
		t.Fatalf("counts=%d/%d/%d want 3/1/2", a.FixedCount(), a.FloatCount(), a.StandardCount())
	}
}

func TestBestValuesAndTimestamps(t *testing.T) {
	var a Accumulator
	s1 := sample(1, 1, 2, gnss.CarrierFixed)
	s1.HAccMM, s1.VAccMM, s1.HDOPHundredths = 25, 40, 110
	s2 := sample(2, 1, 2, gnss.CarrierFixed)
	s2.HAccMM, s2.VAccMM, s2.HDOPHundredths = 14, 45, 92
	a.Add(s1)
	a.Add(s2)

	if a.BestHAccMM() != 14 || a.BestVAccMM() != 40 {
		t.Fatalf("best acc=%d/%d want 14/40", a.BestHAccMM(), a.BestVAccMM())
	}
	if !almostEq(a.BestHDOP(), 0.92) {
		t.Fatalf("bestHDOP=%v want 0.92", a.BestHDOP())
	}
	if a.FirstTime().Uptime != s1.Time.Uptime {
		t.Fatalf("firstTime=%v want first sample's", a.FirstTime().Uptime)
	}
	if a.LastTime().Uptime != s2.Time.Uptime {
		t.Fatalf("lastTime=%v want last sample's", a.LastTime().Uptime)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	var a Accumulator
	a.SetPointNumber(3)
	a.Add(sample(1, 1, 2, gnss.CarrierFixed))

	a.Reset()
	a.Reset()
	if a.Count() != 0 || a.PointNumber() != Unassigned {
		t.Fatalf("reset left count=%d point=%d", a.Count(), a.PointNumber())
	}
	if a.FirstTime() != (gnss.Timestamp{}) {
		t.Fatalf("reset left first timestamp %+v", a.FirstTime())
	}
}
