// Package pms7003 decodes the serial frame protocol of the Plantower
// PMS7003 particulate matter sensor.
package pms7003

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/andrewrweber/pi-air/internal/domain"
	"github.com/andrewrweber/pi-air/internal/ports"
)

const (
	syncByte1 = 0x42
	syncByte2 = 0x4D

	// FrameLen is the full frame size in bytes, sync marker included.
	FrameLen = 32

	// payloadLen is the value of the length field: 13 data words plus the
	// checksum word.
	payloadLen = 2*13 + 2
)

const (
	// Atmospheric-concentration words sit at data words 3..5, i.e. byte
	// offsets 10, 12, 14 within the frame.
	offPM1  = 10
	offPM25 = 12
	offPM10 = 14
)

// Decoder turns a raw byte stream into a lazy sequence of RawSamples. It
// never fails on data content: bad frames are skipped and scanning
// resumes at the byte after the sync marker. Errors out of Next come only
// from the underlying reader (EOF, deadline, I/O).
type Decoder struct {
	br      *bufio.Reader
	metrics ports.Metrics
	now     func() time.Time
}

// Option customizes a Decoder.
type Option func(*Decoder)

// WithMetrics counts decoded frames and checksum failures on m.
func WithMetrics(m ports.Metrics) Option {
	return func(d *Decoder) { d.metrics = m }
}

// WithClock overrides the capture timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Decoder) { d.now = now }
}

// NewDecoder wraps r. The decoder buffers internally; callers should not
// read from r directly afterwards.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		br:  bufio.NewReaderSize(r, 4*FrameLen),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next blocks until a valid frame is decoded or the stream errors. A
// truncated frame at end of stream is dropped silently and io.EOF is
// returned.
func (d *Decoder) Next() (domain.RawSample, error) {
	for {
		b, err := d.br.ReadByte()
		if err != nil {
			return domain.RawSample{}, err
		}
		if b != syncByte1 {
			continue
		}

		next, err := d.br.Peek(1)
		if err != nil {
			return domain.RawSample{}, err
		}
		if next[0] != syncByte2 {
			// Not a marker. The peeked byte stays buffered: it may be the
			// start of a real marker.
			continue
		}

		rest, err := d.br.Peek(FrameLen - 1)
		if err != nil {
			return domain.RawSample{}, err
		}

		var frame [FrameLen]byte
		frame[0] = syncByte1
		copy(frame[1:], rest)

		if !frameValid(frame[:]) {
			d.count("piair_frame_checksum_failures_total")
			// Drop only the marker; rescan from the byte after it.
			if _, err := d.br.Discard(1); err != nil {
				return domain.RawSample{}, err
			}
			continue
		}

		if _, err := d.br.Discard(FrameLen - 1); err != nil {
			return domain.RawSample{}, err
		}
		d.count("piair_frames_decoded_total")
		return d.parse(frame[:]), nil
	}
}

func (d *Decoder) parse(frame []byte) domain.RawSample {
	return domain.RawSample{
		CapturedAt: d.now(),
		PM1:        float64(binary.BigEndian.Uint16(frame[offPM1:])),
		PM25:       float64(binary.BigEndian.Uint16(frame[offPM25:])),
		PM10:       float64(binary.BigEndian.Uint16(frame[offPM10:])),
		Valid:      true,
	}
}

func (d *Decoder) count(name string) {
	if d.metrics != nil {
		d.metrics.IncCounter(name, 1)
	}
}

func frameValid(frame []byte) bool {
	if binary.BigEndian.Uint16(frame[2:4]) != payloadLen {
		return false
	}
	var sum uint16
	for _, b := range frame[:FrameLen-2] {
		sum += uint16(b)
	}
	return sum == binary.BigEndian.Uint16(frame[FrameLen-2:])
}

// IsStreamEnd reports whether err marks the clean end of the byte stream.
func IsStreamEnd(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
