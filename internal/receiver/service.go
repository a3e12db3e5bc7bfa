// Package receiver owns the serial link to the positioning receiver. It
// splits the receiver byte stream into UBX frames and NMEA sentences, hands
// decoded fix reports to the control loop over a bounded channel, keeps the
// latest GGA sentence for the caster upload, and writes correction bytes back
// to the receiver.
package receiver

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"rtkrover/internal/gnss"
)

type Config struct {
	// Device is the serial device path, e.g. /dev/ttyACM0.
	Device string
	// Baud defaults to 38400 (u-blox F9 default UART rate).
	Baud uint
}

type Snapshot struct {
	Open        bool   `json:"open"`
	Device      string `json:"device,omitempty"`
	Fixes       uint64 `json:"fixes"`
	DroppedFix  uint64 `json:"dropped_fixes"`
	Sentences   uint64 `json:"sentences"`
	ParseErrors uint64 `json:"parse_errors"`
	LastGGAUTC  string `json:"last_gga_utc,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

var openPort = func(cfg Config) (io.ReadWriteCloser, error) {
	return serial.Open(serial.OpenOptions{
		PortName:        cfg.Device,
		BaudRate:        cfg.Baud,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	})
}

type Service struct {
	cfg Config

	mu     sync.Mutex
	port   io.ReadWriteCloser
	cancel context.CancelFunc
	wg     sync.WaitGroup

	fixCh chan gnss.FixReport

	stateMu     sync.Mutex
	splitter    gnss.Splitter
	hdop        uint16
	lastGGA     []byte
	lastGGAAt   time.Time
	fixes       uint64
	droppedFix  uint64
	sentences   uint64
	parseErrors uint64
	lastErr     string
	open        bool
}

func New(cfg Config) *Service {
	if cfg.Baud == 0 {
		cfg.Baud = 38400
	}
	return &Service{cfg: cfg, fixCh: make(chan gnss.FixReport, 8)}
}

// Fixes is the bounded channel of decoded fix reports. The control loop
// drains it non-blockingly; when it falls behind, new fixes are dropped and
// counted.
func (s *Service) Fixes() <-chan gnss.FixReport {
	if s == nil {
		return nil
	}
	return s.fixCh
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("receiver: service is nil")
	}
	if s.cfg.Device == "" {
		return fmt.Errorf("receiver: device is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	port, err := openPort(s.cfg)
	if err != nil {
		s.setErr(fmt.Sprintf("receiver open failed device=%s baud=%d: %v", s.cfg.Device, s.cfg.Baud, err))
		return err
	}
	s.port = port

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.stateMu.Lock()
	s.open = true
	s.stateMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = port.Close() }()

		log.Printf("receiver enabled device=%s baud=%d", s.cfg.Device, s.cfg.Baud)

		buf := make([]byte, 512)
		for {
			select {
			case <-childCtx.Done():
				return
			default:
			}

			n, err := port.Read(buf)
			if n > 0 {
				s.process(buf[:n])
			}
			if err != nil {
				s.setErr(fmt.Sprintf("receiver read stopped: %v", err))
				s.stateMu.Lock()
				s.open = false
				s.stateMu.Unlock()
				return
			}
		}
	}()
	return nil
}

// process feeds stream bytes through the UBX/NMEA splitter.
func (s *Service) process(b []byte) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.splitter.Feed(b, s.onFrame, s.onLine)
}

// onFrame runs with stateMu held.
func (s *Service) onFrame(f gnss.Frame) {
	if f.Class != gnss.ClassNav {
		return
	}
	switch f.ID {
	case gnss.IDNavDOP:
		dop, err := gnss.DecodeNavDOP(f.Payload)
		if err != nil {
			s.parseErrors++
			return
		}
		s.hdop = dop.HDOPHundredths
	case gnss.IDNavPVT:
		pvt, err := gnss.DecodeNavPVT(f.Payload)
		if err != nil {
			s.parseErrors++
			return
		}
		s.fixes++
		select {
		case s.fixCh <- gnss.FixReport{PVT: pvt, HDOPHundredths: s.hdop}:
		default:
			s.droppedFix++
		}
	}
}

// onLine runs with stateMu held.
func (s *Service) onLine(line []byte) {
	sent, err := nmea.Parse(string(line))
	if err != nil {
		s.parseErrors++
		return
	}
	s.sentences++
	if sent.DataType() != nmea.TypeGGA {
		return
	}
	// Kept verbatim, CRLF-terminated, for the caster position upload.
	s.lastGGA = append(append([]byte(nil), line...), '\r', '\n')
	s.lastGGAAt = time.Now().UTC()
}

// LastGGA returns a copy of the most recent GGA sentence, or nil when none
// has been seen yet.
func (s *Service) LastGGA() []byte {
	if s == nil {
		return nil
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.lastGGA == nil {
		return nil
	}
	return append([]byte(nil), s.lastGGA...)
}

// WriteCorrections pushes correction bytes to the receiver's correction
// input.
func (s *Service) WriteCorrections(p []byte) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("receiver: service is nil")
	}
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return 0, fmt.Errorf("receiver: port not open")
	}
	return port.Write(p)
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	out := Snapshot{
		Open:        s.open,
		Device:      s.cfg.Device,
		Fixes:       s.fixes,
		DroppedFix:  s.droppedFix,
		Sentences:   s.sentences,
		ParseErrors: s.parseErrors,
		LastError:   s.lastErr,
	}
	if !s.lastGGAAt.IsZero() {
		out.LastGGAUTC = s.lastGGAAt.Format(time.RFC3339Nano)
	}
	return out
}

func (s *Service) setErr(msg string) {
	s.stateMu.Lock()
	s.lastErr = msg
	s.stateMu.Unlock()
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	port := s.port
	s.cancel = nil
	s.port = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if port != nil {
		_ = port.Close()
	}
	s.wg.Wait()
}
