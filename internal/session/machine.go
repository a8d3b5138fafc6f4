// Package session implements the recording-session state machine.
//
// The [Machine] is the single owner of all session state: mode, lifecycle
// state, elapsed recording time, the captured artifact, and text-mode
// content. Other components read it through accessors and request mutations
// only through the transition methods; invalid transitions are rejected
// with [ErrInvalidTransition], never silently ignored.
//
// All exported methods are safe for concurrent use.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Modality is the capture type for a chapter.
type Modality string

const (
	ModalityVideo Modality = "video"
	ModalityAudio Modality = "audio"
	ModalityText  Modality = "text"
)

// IsValid reports whether m is a recognised modality.
func (m Modality) IsValid() bool {
	switch m {
	case ModalityVideo, ModalityAudio, ModalityText:
		return true
	}
	return false
}

// State is the lifecycle state of a recording session.
type State string

const (
	StateIdle       State = "idle"
	StatePreviewing State = "previewing"
	StateRecording  State = "recording"
	StatePaused     State = "paused"
	StateCompleted  State = "completed"
	StateUploading  State = "uploading"
)

// Artifact is a finished capture: an opaque binary blob plus its declared
// content type. The session owns it exclusively until it is handed to the
// upload client.
type Artifact struct {
	Data        []byte
	ContentType string
}

// Size returns the artifact size in bytes.
func (a *Artifact) Size() int64 {
	if a == nil {
		return 0
	}
	return int64(len(a.Data))
}

// ErrInvalidTransition is returned by every transition method when the
// current state does not permit the requested transition.
var ErrInvalidTransition = errors.New("invalid transition")

// Option is a functional option for [NewMachine].
type Option func(*Machine)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.timer.now = now
	}
}

// WithAdvisoryTTL overrides how long advisory messages stay set before
// auto-expiring.
func WithAdvisoryTTL(ttl time.Duration) Option {
	return func(m *Machine) {
		m.advisoryTTL = ttl
	}
}

// WithTransitionFunc registers cb to be invoked after every successful
// state change. The callback runs with internal locks released.
func WithTransitionFunc(cb func(from, to State)) Option {
	return func(m *Machine) {
		m.onTransition = cb
	}
}

// Machine is the authoritative owner of one recording session.
type Machine struct {
	mu           sync.Mutex
	mode         Modality
	state        State
	timer        elapsedTimer
	artifact     *Artifact
	text         string
	wordCount    int
	permission   advisory
	uploadStatus advisory

	advisoryTTL  time.Duration
	onTransition func(from, to State)
}

// NewMachine creates a session machine in the idle state with video mode
// selected.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		mode:        ModalityVideo,
		state:       StateIdle,
		advisoryTTL: 6 * time.Second,
	}
	m.timer.now = time.Now
	for _, o := range opts {
		o(m)
	}
	return m
}

// Mode returns the currently selected modality.
func (m *Machine) Mode() Modality {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RecordingSeconds returns the elapsed recording time in whole seconds.
// It advances only while the state is recording.
func (m *Machine) RecordingSeconds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int(m.timer.elapsed().Seconds())
}

// Artifact returns the held artifact, or nil outside completed/uploading.
func (m *Machine) Artifact() *Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.artifact
}

// Text returns the text-mode content.
func (m *Machine) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// WordCount returns the whitespace-delimited token count of the text-mode
// content. It is recomputed on every text mutation.
func (m *Machine) WordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wordCount
}

// SetMode selects a new modality. Permitted only from idle. Any held
// artifact, text content, and the elapsed timer are cleared — switching
// modes mid-capture is not supported and stale media must never carry over.
func (m *Machine) SetMode(mode Modality) error {
	if !mode.IsValid() {
		return fmt.Errorf("session: unknown modality %q", mode)
	}
	m.mu.Lock()
	if m.state != StateIdle {
		defer m.mu.Unlock()
		return fmt.Errorf("session: %w: set mode while %q", ErrInvalidTransition, m.state)
	}
	m.mode = mode
	m.artifact = nil
	m.text = ""
	m.wordCount = 0
	m.timer.reset()
	m.mu.Unlock()
	return nil
}

// BeginPreview transitions idle → previewing. Text mode has no preview.
func (m *Machine) BeginPreview() error {
	return m.transition(StatePreviewing, func() error {
		if m.mode == ModalityText {
			return fmt.Errorf("session: %w: preview in text mode", ErrInvalidTransition)
		}
		if m.state != StateIdle {
			return fmt.Errorf("session: %w: begin preview while %q", ErrInvalidTransition, m.state)
		}
		return nil
	})
}

// BeginRecording transitions previewing → recording and starts the
// elapsed-time timer.
func (m *Machine) BeginRecording() error {
	return m.transition(StateRecording, func() error {
		if m.state != StatePreviewing {
			return fmt.Errorf("session: %w: begin recording while %q", ErrInvalidTransition, m.state)
		}
		m.timer.reset()
		m.timer.start()
		return nil
	})
}

// Pause transitions recording → paused and freezes the timer.
func (m *Machine) Pause() error {
	return m.transition(StatePaused, func() error {
		if m.state != StateRecording {
			return fmt.Errorf("session: %w: pause while %q", ErrInvalidTransition, m.state)
		}
		m.timer.pause()
		return nil
	})
}

// Resume transitions paused → recording and restarts the timer.
func (m *Machine) Resume() error {
	return m.transition(StateRecording, func() error {
		if m.state != StatePaused {
			return fmt.Errorf("session: %w: resume while %q", ErrInvalidTransition, m.state)
		}
		m.timer.resume()
		return nil
	})
}

// CompleteRecording transitions recording/paused → completed, stops the
// timer, and takes ownership of the finished artifact.
func (m *Machine) CompleteRecording(a *Artifact) error {
	if a == nil || len(a.Data) == 0 {
		return errors.New("session: complete recording with empty artifact")
	}
	return m.transition(StateCompleted, func() error {
		if m.state != StateRecording && m.state != StatePaused {
			return fmt.Errorf("session: %w: complete recording while %q", ErrInvalidTransition, m.state)
		}
		m.timer.pause()
		m.artifact = a
		return nil
	})
}

// EndPreview transitions previewing → idle without producing an artifact.
func (m *Machine) EndPreview() error {
	return m.transition(StateIdle, func() error {
		if m.state != StatePreviewing {
			return fmt.Errorf("session: %w: end preview while %q", ErrInvalidTransition, m.state)
		}
		return nil
	})
}

// SetText replaces the text-mode content and recomputes the word count.
// Permitted only in text mode while idle.
func (m *Machine) SetText(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != ModalityText {
		return fmt.Errorf("session: set text in %q mode", m.mode)
	}
	if m.state != StateIdle {
		return fmt.Errorf("session: %w: set text while %q", ErrInvalidTransition, m.state)
	}
	m.text = text
	m.wordCount = len(strings.Fields(text))
	return nil
}

// BeginUpload transitions into uploading. Media modes require a completed
// artifact; text mode moves straight from idle with non-empty text.
func (m *Machine) BeginUpload() error {
	return m.transition(StateUploading, func() error {
		if m.mode == ModalityText {
			if m.state != StateIdle {
				return fmt.Errorf("session: %w: begin text upload while %q", ErrInvalidTransition, m.state)
			}
			if strings.TrimSpace(m.text) == "" {
				return fmt.Errorf("session: %w: begin text upload with empty text", ErrInvalidTransition)
			}
			return nil
		}
		if m.state != StateCompleted {
			return fmt.Errorf("session: %w: begin upload while %q", ErrInvalidTransition, m.state)
		}
		if m.artifact == nil {
			return fmt.Errorf("session: %w: begin upload without artifact", ErrInvalidTransition)
		}
		return nil
	})
}

// CompleteUpload transitions uploading → idle once the artifact is durably
// stored, releasing the held artifact reference.
func (m *Machine) CompleteUpload() error {
	return m.transition(StateIdle, func() error {
		if m.state != StateUploading {
			return fmt.Errorf("session: %w: complete upload while %q", ErrInvalidTransition, m.state)
		}
		m.artifact = nil
		m.text = ""
		m.wordCount = 0
		return nil
	})
}

// AbandonUpload transitions uploading → completed so a media upload can be
// retried with the artifact intact. Text mode returns to idle instead.
func (m *Machine) AbandonUpload() error {
	target := StateCompleted
	if m.Mode() == ModalityText {
		target = StateIdle
	}
	return m.transition(target, func() error {
		if m.state != StateUploading {
			return fmt.Errorf("session: %w: abandon upload while %q", ErrInvalidTransition, m.state)
		}
		return nil
	})
}

// Reset returns the session to idle, preserving the selected mode and
// discarding any artifact, text, and elapsed time.
func (m *Machine) Reset() {
	m.mu.Lock()
	from := m.state
	m.state = StateIdle
	m.artifact = nil
	m.text = ""
	m.wordCount = 0
	m.timer.reset()
	cb := m.onTransition
	m.mu.Unlock()
	if cb != nil && from != StateIdle {
		cb(from, StateIdle)
	}
}

// transition runs guard under the lock and, when it allows the move, sets
// the new state and notifies the transition callback.
func (m *Machine) transition(to State, guard func() error) error {
	m.mu.Lock()
	if err := guard(); err != nil {
		m.mu.Unlock()
		return err
	}
	from := m.state
	m.state = to
	cb := m.onTransition
	m.mu.Unlock()
	if cb != nil {
		cb(from, to)
	}
	return nil
}
