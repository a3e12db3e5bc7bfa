package gnss

import (
	"encoding/binary"
	"fmt"
	"time"
)

// UBX framing: 0xB5 0x62, class, id, little-endian payload length, payload,
// then a 2-byte Fletcher checksum over class..payload.
const (
	ubxSync1 = 0xB5
	ubxSync2 = 0x62

	ClassNav = 0x01
	IDNavPVT = 0x07
	IDNavDOP = 0x04
)

const (
	navPVTLen = 92
	navDOPLen = 18

	maxUBXPayload = 1024
	maxNMEALine   = 256
)

// Frame is one validated UBX frame.
type Frame struct {
	Class   byte
	ID      byte
	Payload []byte
}

// ubxChecksum computes the 8-bit Fletcher checksum over class, id, length and
// payload bytes.
func ubxChecksum(class, id byte, payload []byte) (ckA, ckB byte) {
	add := func(b byte) {
		ckA += b
		ckB += ckA
	}
	add(class)
	add(id)
	add(byte(len(payload)))
	add(byte(len(payload) >> 8))
	for _, b := range payload {
		add(b)
	}
	return ckA, ckB
}

// Splitter incrementally separates the receiver byte stream, which interleaves
// binary UBX frames with NMEA text lines. Unrecognized bytes are dropped.
type Splitter struct {
	buf []byte
}

// Feed appends stream bytes and emits every complete UBX frame and NMEA line
// found so far. Partial trailing data is kept for the next call. Frames with
// bad checksums are discarded silently; the stream resynchronizes on the next
// sync byte.
func (sp *Splitter) Feed(b []byte, onFrame func(Frame), onLine func(line []byte)) {
	sp.buf = append(sp.buf, b...)

	for {
		// Skip garbage until a frame or sentence start.
		i := 0
		for i < len(sp.buf) && sp.buf[i] != ubxSync1 && sp.buf[i] != '$' {
			i++
		}
		sp.buf = sp.buf[i:]
		if len(sp.buf) == 0 {
			return
		}

		if sp.buf[0] == '$' {
			nl := -1
			for j := 1; j < len(sp.buf); j++ {
				if sp.buf[j] == '\n' {
					nl = j
					break
				}
			}
			if nl == -1 {
				if len(sp.buf) > maxNMEALine {
					sp.buf = sp.buf[1:]
					continue
				}
				return
			}
			line := sp.buf[:nl]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			if len(line) > 0 && onLine != nil {
				onLine(append([]byte(nil), line...))
			}
			sp.buf = sp.buf[nl+1:]
			continue
		}

		// UBX frame: sync(2) class id len(2) payload ck(2).
		if len(sp.buf) < 8 {
			return
		}
		if sp.buf[1] != ubxSync2 {
			sp.buf = sp.buf[1:]
			continue
		}
		plen := int(binary.LittleEndian.Uint16(sp.buf[4:6]))
		if plen > maxUBXPayload {
			sp.buf = sp.buf[2:]
			continue
		}
		total := 8 + plen
		if len(sp.buf) < total {
			return
		}
		class, id := sp.buf[2], sp.buf[3]
		payload := sp.buf[6 : 6+plen]
		ckA, ckB := ubxChecksum(class, id, payload)
		if ckA != sp.buf[total-2] || ckB != sp.buf[total-1] {
			sp.buf = sp.buf[2:]
			continue
		}
		if onFrame != nil {
			onFrame(Frame{Class: class, ID: id, Payload: append([]byte(nil), payload...)})
		}
		sp.buf = sp.buf[total:]
	}
}

// NavPVT is the subset of the UBX NAV-PVT solution the logger consumes.
type NavPVT struct {
	ITowMS uint32

	Year                uint16
	Month, Day          uint8
	Hour, Min, Sec      uint8
	DateValid           bool
	TimeValid           bool
	FullyResolved       bool

	FixType         uint8
	CarrierSolution uint8
	NumSV           uint8

	LonDeg float64
	LatDeg float64

	HeightEllipsoidMM int32
	HeightMSLMM       int32

	HAccMM uint32
	VAccMM uint32

	PDOPHundredths uint16
}

// CivilTime returns the receiver UTC time and whether it is trustworthy
// (fully resolved date and time).
func (p NavPVT) CivilTime() (time.Time, bool) {
	if !p.DateValid || !p.TimeValid || !p.FullyResolved {
		return time.Time{}, false
	}
	return time.Date(int(p.Year), time.Month(p.Month), int(p.Day),
		int(p.Hour), int(p.Min), int(p.Sec), 0, time.UTC), true
}

// DecodeNavPVT decodes a NAV-PVT payload.
func DecodeNavPVT(payload []byte) (NavPVT, error) {
	if len(payload) < navPVTLen {
		return NavPVT{}, fmt.Errorf("nav-pvt payload too short: %d", len(payload))
	}
	le := binary.LittleEndian
	valid := payload[11]
	flags := payload[21]
	out := NavPVT{
		ITowMS: le.Uint32(payload[0:4]),

		Year:          le.Uint16(payload[4:6]),
		Month:         payload[6],
		Day:           payload[7],
		Hour:          payload[8],
		Min:           payload[9],
		Sec:           payload[10],
		DateValid:     valid&0x01 != 0,
		TimeValid:     valid&0x02 != 0,
		FullyResolved: valid&0x04 != 0,

		FixType:         payload[20],
		CarrierSolution: (flags >> 6) & 0x03,
		NumSV:           payload[23],

		LonDeg: float64(int32(le.Uint32(payload[24:28]))) * 1e-7,
		LatDeg: float64(int32(le.Uint32(payload[28:32]))) * 1e-7,

		HeightEllipsoidMM: int32(le.Uint32(payload[32:36])),
		HeightMSLMM:       int32(le.Uint32(payload[36:40])),

		HAccMM: le.Uint32(payload[40:44]),
		VAccMM: le.Uint32(payload[44:48]),

		PDOPHundredths: le.Uint16(payload[76:78]),
	}
	return out, nil
}

// NavDOP is the subset of the UBX NAV-DOP message the logger consumes.
// All values are hundredths.
type NavDOP struct {
	PDOPHundredths uint16
	HDOPHundredths uint16
	VDOPHundredths uint16
}

// DecodeNavDOP decodes a NAV-DOP payload.
func DecodeNavDOP(payload []byte) (NavDOP, error) {
	if len(payload) < navDOPLen {
		return NavDOP{}, fmt.Errorf("nav-dop payload too short: %d", len(payload))
	}
	le := binary.LittleEndian
	return NavDOP{
		PDOPHundredths: le.Uint16(payload[6:8]),
		VDOPHundredths: le.Uint16(payload[10:12]),
		HDOPHundredths: le.Uint16(payload[12:14]),
	}, nil
}
