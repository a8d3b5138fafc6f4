// Package mock provides test doubles for the capture device interfaces.
// All fields are exported so tests can preload results and inspect calls.
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/mverbeek/levensboek/internal/capture"
)

// Device is a mock capture.Device.
type Device struct {
	mu sync.Mutex

	// AcquireStream is returned by Acquire when AcquireErr is nil.
	AcquireStream *Stream

	// AcquireErr, when set, is returned by every Acquire call.
	AcquireErr error

	// AcquireCalls records the constraints of each Acquire call.
	AcquireCalls []capture.Constraints
}

// Acquire implements capture.Device.
func (d *Device) Acquire(_ context.Context, c capture.Constraints) (capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.AcquireCalls = append(d.AcquireCalls, c)
	if d.AcquireErr != nil {
		return nil, d.AcquireErr
	}
	return d.AcquireStream, nil
}

// Stream is a mock capture.Stream. Record delivers the preloaded Chunks on
// the returned channel; the channel closes after Stop is called, mimicking
// recorder finalization.
type Stream struct {
	mu sync.Mutex

	// Supported lists the encodings Supports reports true for.
	Supported []string

	// Chunks are delivered in order on the Record channel.
	Chunks [][]byte

	// RecordErr, when set, is returned by Record.
	RecordErr error

	// StopErr, when set, is returned by Stop.
	StopErr error

	// Call records.
	RecordCalls []string
	PauseCount  int
	ResumeCount int
	StopCount   int
	CloseCount  int

	stopCh chan struct{}
}

// Supports implements capture.Stream.
func (s *Stream) Supports(encoding string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.Supported, encoding)
}

// Record implements capture.Stream.
func (s *Stream) Record(encoding string, _ time.Duration) (<-chan []byte, error) {
	s.mu.Lock()
	s.RecordCalls = append(s.RecordCalls, encoding)
	if s.RecordErr != nil {
		s.mu.Unlock()
		return nil, s.RecordErr
	}
	s.stopCh = make(chan struct{})
	chunks := make([][]byte, len(s.Chunks))
	copy(chunks, s.Chunks)
	stop := s.stopCh
	s.mu.Unlock()

	out := make(chan []byte)
	go func() {
		defer close(out)
		for _, c := range chunks {
			out <- c
		}
		<-stop
	}()
	return out, nil
}

// Pause implements capture.Stream.
func (s *Stream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PauseCount++
	return nil
}

// Resume implements capture.Stream.
func (s *Stream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResumeCount++
	return nil
}

// Stop implements capture.Stream.
func (s *Stream) Stop() error {
	s.mu.Lock()
	s.StopCount++
	err := s.StopErr
	s.mu.Unlock()
	s.signalStop()
	return err
}

// Close implements capture.Stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.CloseCount++
	s.mu.Unlock()
	s.signalStop()
	return nil
}

// signalStop closes the current recording's stop channel. Clearing the
// reference lets the stream be recorded again.
func (s *Stream) signalStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}
