// Package synth provides a synthetic capture device that renders a sine
// tone into a real WAV artifact. It lets the full record → upload →
// interview pipeline run on machines without camera or microphone hardware
// and backs the engine's development mode.
package synth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/mverbeek/levensboek/internal/capture"
)

const encodingWAV = "audio/wav"

// Option is a functional option for [New].
type Option func(*Device)

// WithSampleRate sets the output sample rate in Hz. Default: 16000.
func WithSampleRate(rate int) Option {
	return func(d *Device) {
		d.sampleRate = rate
	}
}

// WithFrequency sets the tone frequency in Hz. Default: 440.
func WithFrequency(freq float64) Option {
	return func(d *Device) {
		d.frequency = freq
	}
}

// Device implements capture.Device. It has no camera: video acquisitions
// fail with capture.ErrDeviceNotFound, which exercises the controller's
// audio-fallback advisory.
type Device struct {
	sampleRate int
	frequency  float64
}

// New creates a synthetic device.
func New(opts ...Option) *Device {
	d := &Device{
		sampleRate: 16000,
		frequency:  440,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Acquire implements capture.Device.
func (d *Device) Acquire(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Video {
		return nil, fmt.Errorf("synth: %w: device has no camera", capture.ErrDeviceNotFound)
	}
	if !c.Audio {
		return nil, errors.New("synth: acquisition requested no tracks")
	}
	return &stream{
		sampleRate: d.sampleRate,
		frequency:  d.frequency,
	}, nil
}

// stream generates sine-tone PCM while recording and emits one finalized
// WAV file, delivered in chunks, after Stop.
type stream struct {
	sampleRate int
	frequency  float64

	mu      sync.Mutex
	paused  bool
	samples []int
	phase   float64

	stopOnce  sync.Once
	closeOnce sync.Once
	stopCh    chan struct{}
}

func (s *stream) Supports(encoding string) bool {
	return encoding == encodingWAV
}

func (s *stream) Record(encoding string, interval time.Duration) (<-chan []byte, error) {
	if encoding != encodingWAV {
		return nil, fmt.Errorf("synth: unsupported encoding %q", encoding)
	}
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return nil, errors.New("synth: already recording")
	}
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	out := make(chan []byte)
	go s.run(interval, stop, out)
	return out, nil
}

// run generates PCM per tick until stopped, then encodes and delivers the
// finished WAV.
func (s *stream) run(interval time.Duration, stop <-chan struct{}, out chan<- []byte) {
	defer close(out)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	samplesPerTick := int(float64(s.sampleRate) * interval.Seconds())

loop:
	for {
		select {
		case <-stop:
			break loop
		case <-ticker.C:
			s.generate(samplesPerTick)
		}
	}

	data, err := s.encode()
	if err != nil {
		return
	}
	const chunkSize = 32 << 10
	for off := 0; off < len(data); off += chunkSize {
		end := min(off+chunkSize, len(data))
		out <- data[off:end]
	}
}

// generate appends one tick worth of 16-bit sine samples.
func (s *stream) generate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	step := 2 * math.Pi * s.frequency / float64(s.sampleRate)
	for range n {
		s.samples = append(s.samples, int(math.Sin(s.phase)*math.MaxInt16*0.3))
		s.phase += step
	}
}

// encode renders the accumulated samples as a complete WAV file.
func (s *stream) encode() ([]byte, error) {
	s.mu.Lock()
	samples := s.samples
	s.mu.Unlock()

	buf := &writeSeekBuffer{}
	enc := wav.NewEncoder(buf, s.sampleRate, 16, 1, 1)
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: s.sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(ib); err != nil {
		return nil, fmt.Errorf("synth: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("synth: finalize wav: %w", err)
	}
	return buf.data, nil
}

func (s *stream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

func (s *stream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

func (s *stream) Stop() error {
	s.mu.Lock()
	stop := s.stopCh
	s.mu.Unlock()
	if stop == nil {
		return errors.New("synth: not recording")
	}
	s.stopOnce.Do(func() { close(stop) })
	return nil
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		stop := s.stopCh
		s.mu.Unlock()
		if stop != nil {
			s.stopOnce.Do(func() { close(stop) })
		}
	})
	return nil
}

// writeSeekBuffer is an in-memory io.WriteSeeker for the WAV encoder,
// which must seek back to patch chunk sizes on Close.
type writeSeekBuffer struct {
	data []byte
	pos  int
}

func (b *writeSeekBuffer) Write(p []byte) (int, error) {
	if grow := b.pos + len(p) - len(b.data); grow > 0 {
		b.data = append(b.data, make([]byte, grow)...)
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = b.pos + int(offset)
	case io.SeekEnd:
		next = len(b.data) + int(offset)
	default:
		return 0, errors.New("synth: invalid seek whence")
	}
	if next < 0 {
		return 0, errors.New("synth: negative seek position")
	}
	b.pos = next
	return int64(next), nil
}
