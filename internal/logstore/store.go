// Package logstore owns the append-only daily log files: one raw-sample CSV
// and one averaged-point CSV per calendar day. Headers are written exactly
// once per file, opens are retried with a fixed backoff, and any write
// failure latches storage unavailable until a health check brings it back.
package logstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rtkrover/internal/gnss"
	"rtkrover/internal/point"
)

const (
	rawHeader      = "PointNumber,DateTime,Latitude,Longitude,AltitudeMSL_m,AltitudeEllipsoid_m,GeoidSep_m,HDOP,PDOP,hAcc_mm,vAcc_mm,FixType,CarrierSolution,Satellites"
	averagedHeader = rawHeader + ",SampleCount,RTKFixed_%,Duration_sec"
)

// Placeholder values used in averaged records instead of measured aggregates.
// Kept for log-format compatibility with existing tooling.
const (
	averagedFixType    = 3
	averagedSatellites = 15
)

// ErrEmptySession is returned when an averaged write is requested for a
// session with zero samples. Callers treat it as a skip, not a fault.
var ErrEmptySession = errors.New("logstore: empty session")

// Kind selects one of the two logical logs.
type Kind int

const (
	KindRaw Kind = iota
	KindAveraged
)

type Config struct {
	// Dir is the directory holding the daily log files.
	Dir string
	// RetryAttempts caps append-open attempts before a write is declared
	// failed.
	RetryAttempts int
	// RetryDelay is the fixed backoff between open attempts.
	RetryDelay time.Duration
}

type Snapshot struct {
	Available      bool   `json:"available"`
	RawWrites      uint64 `json:"raw_writes"`
	AveragedWrites uint64 `json:"averaged_writes"`
	WriteFailures  uint64 `json:"write_failures"`
	RawFile        string `json:"raw_file,omitempty"`
	AveragedFile   string `json:"averaged_file,omitempty"`
	LastError      string `json:"last_error,omitempty"`
}

// Store is only ever touched by the control-loop goroutine, so it carries no
// locking.
type Store struct {
	cfg Config

	sleep func(time.Duration)

	available bool
	// civilNaming latches the filename scheme (civil date vs uptime day) on
	// first file creation; the two schemes are never mixed within a run.
	civilNaming *bool
	current     [2]string

	rawWrites      uint64
	averagedWrites uint64
	writeFailures  uint64
	lastErr        string
}

func New(cfg Config) *Store {
	if cfg.Dir == "" {
		cfg.Dir = "/"
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 50 * time.Millisecond
	}
	return &Store{cfg: cfg, sleep: time.Sleep}
}

// Available reports whether storage is usable, re-attempting initialization
// at most once per call when it is not.
func (s *Store) Available() bool {
	if s == nil {
		return false
	}
	if s.available {
		return true
	}
	if err := s.initStorage(); err != nil {
		s.lastErr = err.Error()
		return false
	}
	s.available = true
	s.lastErr = ""
	return true
}

func (s *Store) initStorage() error {
	info, err := os.Stat(s.cfg.Dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("storage path %s is not a directory", s.cfg.Dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(s.cfg.Dir, 0o755)
}

func (s *Store) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{
		Available:      s.available,
		RawWrites:      s.rawWrites,
		AveragedWrites: s.averagedWrites,
		WriteFailures:  s.writeFailures,
		RawFile:        s.current[KindRaw],
		AveragedFile:   s.current[KindAveraged],
		LastError:      s.lastErr,
	}
}

// dateKey is the date identity of a log file, derived from a sample
// timestamp: a civil calendar date when the receiver time is valid, an
// uptime-day index otherwise.
type dateKey struct {
	civilValid bool
	year       int
	month      time.Month
	day        int
	uptimeDay  int
}

func keyFromTimestamp(ts gnss.Timestamp) dateKey {
	k := dateKey{uptimeDay: int(ts.Uptime / (24 * time.Hour))}
	if ts.CivilValid {
		c := ts.Civil.UTC()
		k.civilValid = true
		k.year, k.month, k.day = c.Year(), c.Month(), c.Day()
	}
	return k
}

func (k dateKey) fileName(kind Kind, civil bool) string {
	if civil {
		date := fmt.Sprintf("%04d%02d%02d", k.year, k.month, k.day)
		if kind == KindRaw {
			return "gps_" + date + ".csv"
		}
		return "gps_averaged_" + date + ".csv"
	}
	if kind == KindRaw {
		return fmt.Sprintf("gps_log_day%d.csv", k.uptimeDay)
	}
	return fmt.Sprintf("gps_averaged_day%d.csv", k.uptimeDay)
}

// ensureDailyFile resolves the date-keyed filename for kind, creates the file
// with its header if missing, verifies it exists, and records it as the
// active file for that kind.
func (s *Store) ensureDailyFile(kind Kind, ts gnss.Timestamp) (string, error) {
	key := keyFromTimestamp(ts)
	if s.civilNaming == nil {
		v := key.civilValid
		s.civilNaming = &v
	}
	civil := *s.civilNaming
	if civil && !key.civilValid {
		// Civil naming is latched but this timestamp has no date. Stay on the
		// currently open file rather than mixing schemes.
		if s.current[kind] == "" {
			return "", fmt.Errorf("no civil date for %s file", kindName(kind))
		}
		return filepath.Join(s.cfg.Dir, s.current[kind]), nil
	}

	name := key.fileName(kind, civil)
	path := filepath.Join(s.cfg.Dir, name)

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("stat %s: %w", name, err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			return "", fmt.Errorf("create %s: %w", name, err)
		}
		header := rawHeader
		if kind == KindAveraged {
			header = averagedHeader
		}
		if _, err := f.WriteString(header + "\n"); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("write header %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", name, err)
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("verify %s: %w", name, err)
		}
	}

	s.current[kind] = name
	return path, nil
}

func kindName(kind Kind) string {
	if kind == KindAveraged {
		return "averaged"
	}
	return "raw"
}

// appendLine opens path in append mode (retrying per the configured policy),
// writes one record, syncs and closes.
func (s *Store) appendLine(path, line string) error {
	var f *os.File
	var err error
	for attempt := 0; attempt < s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			s.sleep(s.cfg.RetryDelay)
		}
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func (s *Store) fail(err error) error {
	s.writeFailures++
	s.available = false
	s.lastErr = err.Error()
	return err
}

// AppendRaw writes one raw-sample record to the day's raw log.
func (s *Store) AppendRaw(pointNumber int, sample gnss.PositionSample) error {
	if s == nil {
		return fmt.Errorf("logstore: store is nil")
	}
	path, err := s.ensureDailyFile(KindRaw, sample.Time)
	if err != nil {
		return s.fail(err)
	}
	if err := s.appendLine(path, rawRecord(pointNumber, sample)); err != nil {
		return s.fail(err)
	}
	s.rawWrites++
	return nil
}

// AppendAveraged writes the session's single averaged-point record to the
// day's averaged log. The day is keyed by the session's first sample.
func (s *Store) AppendAveraged(acc *point.Accumulator) error {
	if s == nil {
		return fmt.Errorf("logstore: store is nil")
	}
	if acc == nil || acc.Count() == 0 {
		return ErrEmptySession
	}
	path, err := s.ensureDailyFile(KindAveraged, acc.FirstTime())
	if err != nil {
		return s.fail(err)
	}
	if err := s.appendLine(path, averagedRecord(acc)); err != nil {
		return s.fail(err)
	}
	s.averagedWrites++
	return nil
}

func rawRecord(pointNumber int, sample gnss.PositionSample) string {
	return fmt.Sprintf("%d,%s,%.7f,%.7f,%.3f,%.3f,%.3f,%.2f,%.2f,%d,%d,%d,%d,%d",
		pointNumber,
		sample.Time,
		sample.LatDeg,
		sample.LonDeg,
		sample.AltMSLM,
		sample.AltEllipsoidM,
		sample.GeoidSeparationM(),
		float64(sample.HDOPHundredths)/100.0,
		float64(sample.PDOPHundredths)/100.0,
		sample.HAccMM,
		sample.VAccMM,
		sample.FixType,
		sample.CarrierSolution,
		sample.Satellites,
	)
}

func averagedRecord(acc *point.Accumulator) string {
	// Logging cadence is one sample per second, so the sample count doubles
	// as the session duration.
	durationSec := acc.Count()
	return fmt.Sprintf("%d,%s,%.8f,%.8f,%.3f,%.3f,%.3f,%.2f,%.2f,%.1f,%.1f,%d,%d,%d,%d,%.1f,%d",
		acc.PointNumber(),
		acc.FirstTime(),
		acc.AvgLatDeg(),
		acc.AvgLonDeg(),
		acc.AvgAltMSLM(),
		acc.AvgAltEllipsoidM(),
		acc.GeoidSeparationM(),
		acc.AvgHDOP(),
		acc.AvgPDOP(),
		acc.AvgHAccMM(),
		acc.AvgVAccMM(),
		averagedFixType,
		dominantCarrier(acc.FixedCount(), acc.FloatCount(), acc.StandardCount()),
		averagedSatellites,
		acc.Count(),
		acc.FixedPercentage(),
		durationSec,
	)
}

// dominantCarrier is the majority vote among the per-class counters, with
// ties broken toward standard.
func dominantCarrier(fixed, flt, std int) uint8 {
	if fixed > flt && fixed > std {
		return gnss.CarrierFixed
	}
	if flt > fixed && flt > std {
		return gnss.CarrierFloat
	}
	return gnss.CarrierNone
}
