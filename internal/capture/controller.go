package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mverbeek/levensboek/internal/session"
)

// Encoding preference lists, best first. The first entry the device
// supports is selected — never a later one, the order already encodes the
// desired priority.
var (
	videoEncodings = []string{
		"video/webm;codecs=vp9,opus",
		"video/webm;codecs=vp8,opus",
		"video/webm",
		"video/mp4",
	}
	audioEncodings = []string{
		"audio/webm;codecs=opus",
		"audio/webm",
		"audio/mp4",
		"audio/wav",
	}
)

// Config holds capture tuning; zero values fall back to defaults.
type Config struct {
	// ChunkInterval is the recorder data-collection interval. Default: 1s.
	ChunkInterval time.Duration

	// MinVideoBytes and MinAudioBytes are the artifact size floors. An
	// artifact below its modality's floor is an empty container, not a
	// usable recording. The video floor is higher because of container
	// overhead. Defaults: 100 KiB video, 10 KiB audio.
	MinVideoBytes int64
	MinAudioBytes int64

	// VideoWidth and VideoHeight are the target camera resolution.
	// Defaults: 1280x720.
	VideoWidth  int
	VideoHeight int
}

func (c Config) withDefaults() Config {
	if c.ChunkInterval <= 0 {
		c.ChunkInterval = time.Second
	}
	if c.MinVideoBytes <= 0 {
		c.MinVideoBytes = 100 << 10
	}
	if c.MinAudioBytes <= 0 {
		c.MinAudioBytes = 10 << 10
	}
	if c.VideoWidth <= 0 || c.VideoHeight <= 0 {
		c.VideoWidth, c.VideoHeight = 1280, 720
	}
	return c
}

// Controller owns the device handle for the lifetime of one
// preview/capture session. At most one acquisition is open at a time.
// All exported methods are safe for concurrent use.
type Controller struct {
	device  Device
	machine *session.Machine
	cfg     Config

	mu        sync.Mutex
	stream    Stream
	encoding  string
	collected [][]byte
	done      chan struct{}
}

// NewController creates a capture controller bound to the given device and
// session machine.
func NewController(device Device, machine *session.Machine, cfg Config) *Controller {
	return &Controller{
		device:  device,
		machine: machine,
		cfg:     cfg.withDefaults(),
	}
}

// AcquirePreview requests device access for the session's current mode and
// transitions the session to previewing. On failure the session stays idle
// and the classified advisory is set; the device error itself is handled
// locally and only reported for logging via the return value.
func (c *Controller) AcquirePreview(ctx context.Context) error {
	mode := c.machine.Mode()
	if mode == session.ModalityText {
		return fmt.Errorf("capture: no device preview in text mode")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return errors.New("capture: a device acquisition is already open")
	}

	cons := Constraints{Audio: true}
	if mode == session.ModalityVideo {
		cons.Video = true
		cons.Width = c.cfg.VideoWidth
		cons.Height = c.cfg.VideoHeight
	}

	stream, err := c.device.Acquire(ctx, cons)
	if err != nil {
		failure := ClassifyAcquireFailure(err, mode)
		c.machine.SetPermissionError(failure.Message)
		slog.Warn("device acquisition failed",
			"mode", mode,
			"advisory", failure.Message,
			"audio_fallback", failure.SuggestAudioFallback,
			"error", err)
		return fmt.Errorf("capture: acquire device: %w", err)
	}

	if err := c.machine.BeginPreview(); err != nil {
		_ = stream.Close()
		return err
	}
	c.stream = stream
	return nil
}

// ReleasePreview stops every device track and leaves preview. Idempotent —
// safe to call when no device is held.
func (c *Controller) ReleasePreview() {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.encoding = ""
	c.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
	}
	// Only previewing → idle is a real transition here; any other state
	// means there is nothing to leave.
	_ = c.machine.EndPreview()
}

// BeginCapture starts recording. If no device is held yet it acquires the
// preview first. The encoding is the first supported entry of the mode's
// preference list; chunks are collected at the configured interval.
func (c *Controller) BeginCapture(ctx context.Context) error {
	if c.machine.State() == session.StateIdle {
		if err := c.AcquirePreview(ctx); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return errors.New("capture: no device held")
	}
	if c.done != nil {
		return errors.New("capture: recording already in progress")
	}

	encoding, ok := negotiateEncoding(c.stream, c.machine.Mode())
	if !ok {
		c.machine.SetPermissionError("Opnameformaat wordt niet ondersteund op dit apparaat.")
		return fmt.Errorf("capture: no supported encoding for %s mode", c.machine.Mode())
	}

	chunks, err := c.stream.Record(encoding, c.cfg.ChunkInterval)
	if err != nil {
		return fmt.Errorf("capture: start recorder: %w", err)
	}
	if err := c.machine.BeginRecording(); err != nil {
		_ = c.stream.Stop()
		return err
	}

	c.encoding = encoding
	c.collected = nil
	c.done = make(chan struct{})
	go c.collect(chunks, c.done)

	slog.Info("recording started",
		"mode", c.machine.Mode(),
		"encoding", encoding,
		"chunk_interval", c.cfg.ChunkInterval)
	return nil
}

// collect accumulates recorder chunks until the stream finalizes.
func (c *Controller) collect(chunks <-chan []byte, done chan struct{}) {
	defer close(done)
	for chunk := range chunks {
		c.mu.Lock()
		c.collected = append(c.collected, chunk)
		c.mu.Unlock()
	}
}

// Pause suspends the recording. The recorder and the elapsed-time timer are
// toggled in lockstep — the timer must never advance while the recorder is
// paused.
func (c *Controller) Pause() error {
	if err := c.machine.Pause(); err != nil {
		return err
	}
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return errors.New("capture: no device held")
	}
	if err := stream.Pause(); err != nil {
		// Keep recorder and timer in lockstep.
		_ = c.machine.Resume()
		return fmt.Errorf("capture: pause recorder: %w", err)
	}
	return nil
}

// Resume continues a paused recording, restarting recorder and timer
// together.
func (c *Controller) Resume() error {
	if err := c.machine.Resume(); err != nil {
		return err
	}
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return errors.New("capture: no device held")
	}
	if err := stream.Resume(); err != nil {
		_ = c.machine.Pause()
		return fmt.Errorf("capture: resume recorder: %w", err)
	}
	return nil
}

// EndCapture stops the recording, releases every device track, waits for
// finalization, and assembles the collected chunks into one artifact tagged
// with the negotiated encoding.
//
// An artifact below the modality's size floor is rejected: the session
// returns to idle with a "too short" advisory and [ErrArtifactTooShort] is
// returned. Device tracks are released on every path.
func (c *Controller) EndCapture(ctx context.Context) (*session.Artifact, error) {
	c.mu.Lock()
	stream := c.stream
	done := c.done
	c.stream = nil
	c.done = nil
	c.mu.Unlock()

	if stream == nil || done == nil {
		return nil, errors.New("capture: no recording in progress")
	}

	// Stop recorder and release tracks immediately and unconditionally,
	// even if finalization has not fired yet.
	stopErr := stream.Stop()
	defer stream.Close()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if stopErr != nil {
		c.machine.Reset()
		return nil, fmt.Errorf("capture: stop recorder: %w", stopErr)
	}

	c.mu.Lock()
	artifact := &session.Artifact{
		Data:        bytes.Join(c.collected, nil),
		ContentType: c.encoding,
	}
	c.collected = nil
	c.encoding = ""
	c.mu.Unlock()

	floor := c.cfg.MinAudioBytes
	if c.machine.Mode() == session.ModalityVideo {
		floor = c.cfg.MinVideoBytes
	}
	if artifact.Size() < floor {
		slog.Info("artifact rejected as too short",
			"size_bytes", artifact.Size(),
			"floor_bytes", floor)
		c.machine.Reset()
		c.machine.SetUploadStatus(AdvisoryTooShort)
		return nil, ErrArtifactTooShort
	}

	if err := c.machine.CompleteRecording(artifact); err != nil {
		return nil, err
	}
	slog.Info("recording completed",
		"size_bytes", artifact.Size(),
		"content_type", artifact.ContentType,
		"seconds", c.machine.RecordingSeconds())
	return artifact, nil
}

// negotiateEncoding returns the first entry of the mode's preference list
// that the stream supports.
func negotiateEncoding(s Stream, mode session.Modality) (string, bool) {
	prefs := audioEncodings
	if mode == session.ModalityVideo {
		prefs = videoEncodings
	}
	for _, enc := range prefs {
		if s.Supports(enc) {
			return enc, true
		}
	}
	return "", false
}
