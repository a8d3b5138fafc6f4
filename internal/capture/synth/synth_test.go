package synth_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/mverbeek/levensboek/internal/capture"
	"github.com/mverbeek/levensboek/internal/capture/synth"
)

func TestAcquire_NoCamera(t *testing.T) {
	t.Parallel()
	dev := synth.New()
	_, err := dev.Acquire(context.Background(), capture.Constraints{Audio: true, Video: true})
	if !errors.Is(err, capture.ErrDeviceNotFound) {
		t.Errorf("Acquire() with video = %v, want ErrDeviceNotFound", err)
	}
}

func TestAcquire_NoTracksRequested(t *testing.T) {
	t.Parallel()
	dev := synth.New()
	if _, err := dev.Acquire(context.Background(), capture.Constraints{}); err == nil {
		t.Error("Acquire() without tracks should fail")
	}
}

func TestStream_SupportsOnlyWAV(t *testing.T) {
	t.Parallel()
	dev := synth.New()
	stream, err := dev.Acquire(context.Background(), capture.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer stream.Close()

	if !stream.Supports("audio/wav") {
		t.Error("Supports(audio/wav) = false")
	}
	for _, enc := range []string{"audio/webm;codecs=opus", "audio/webm", "audio/mp4"} {
		if stream.Supports(enc) {
			t.Errorf("Supports(%q) = true, want false", enc)
		}
	}
}

func TestStream_ProducesValidWAV(t *testing.T) {
	t.Parallel()
	dev := synth.New(synth.WithSampleRate(8000), synth.WithFrequency(220))
	stream, err := dev.Acquire(context.Background(), capture.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer stream.Close()

	chunks, err := stream.Record("audio/wav", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := stream.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	var data []byte
	for c := range chunks {
		data = append(data, c...)
	}
	if len(data) == 0 {
		t.Fatal("no WAV data delivered after Stop")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	dec.ReadInfo()
	if !dec.IsValidFile() {
		t.Fatal("delivered bytes are not a valid WAV file")
	}
	if dec.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", dec.SampleRate)
	}
	if dec.NumChans != 1 {
		t.Errorf("NumChans = %d, want 1", dec.NumChans)
	}
	if dec.BitDepth != 16 {
		t.Errorf("BitDepth = %d, want 16", dec.BitDepth)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer() error: %v", err)
	}
	if len(pcm.Data) == 0 {
		t.Error("WAV contains no samples")
	}
}

func TestStream_RecordRejectsOtherEncodings(t *testing.T) {
	t.Parallel()
	dev := synth.New()
	stream, err := dev.Acquire(context.Background(), capture.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer stream.Close()

	if _, err := stream.Record("audio/webm", time.Second); err == nil {
		t.Error("Record(audio/webm) should fail")
	}
}

func TestStream_PauseSuppressesSamples(t *testing.T) {
	t.Parallel()
	dev := synth.New(synth.WithSampleRate(8000))
	stream, err := dev.Acquire(context.Background(), capture.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer stream.Close()

	if err := stream.Pause(); err != nil {
		t.Fatalf("Pause() error: %v", err)
	}
	chunks, err := stream.Record("audio/wav", 5*time.Millisecond)
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if err := stream.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	var data []byte
	for c := range chunks {
		data = append(data, c...)
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer() error: %v", err)
	}
	if len(pcm.Data) != 0 {
		t.Errorf("paused stream produced %d samples, want 0", len(pcm.Data))
	}
}
