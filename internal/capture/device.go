// Package capture implements the capture device controller: acquiring and
// releasing the platform audio/video input, negotiating a recording
// encoding, accumulating data chunks, and assembling the finished artifact.
//
// The two abstractions are:
//
//   - [Device] — acquires the platform input with the requested constraints
//     and returns a [Stream].
//   - [Stream] — an exclusively held device handle: capability queries,
//     chunked recording, pause/resume, and track release.
//
// Platform adapters (and the synth test device) implement these interfaces.
// The [Controller] is the only component that may hold a Stream; the raw
// handle is never exposed to callers.
package capture

import (
	"context"
	"time"
)

// Constraints describes the device tracks requested by an acquisition.
// Video acquisitions always request audio too, so video chapters carry sound.
type Constraints struct {
	// Audio requests a microphone track.
	Audio bool

	// Video requests a camera track at the target resolution below.
	Video bool

	// Width and Height are the requested camera resolution. Ignored when
	// Video is false.
	Width  int
	Height int
}

// Stream is a live device handle obtained from [Device.Acquire].
//
// A Stream starts in preview (tracks live, nothing recorded). Record begins
// chunked recording; Stop ends it and finalizes. Close releases every
// device track and must be idempotent.
//
// Implementations need not be safe for concurrent use — the Controller
// serialises all access.
type Stream interface {
	// Supports reports whether the device can record in the given encoding
	// (a MIME type, possibly with a codecs parameter).
	Supports(encoding string) bool

	// Record starts recording in the given encoding, delivering data chunks
	// on the returned channel at the given collection interval. The channel
	// is closed once recording has stopped and all buffered chunks have been
	// delivered (finalization).
	Record(encoding string, interval time.Duration) (<-chan []byte, error)

	// Pause suspends recording. Chunk delivery stops until Resume.
	Pause() error

	// Resume continues a paused recording.
	Resume() error

	// Stop ends recording and triggers finalization. The chunk channel
	// returned by Record is closed after the final chunk.
	Stop() error

	// Close stops every device track and releases the handle. Safe to call
	// at any time, any number of times.
	Close() error
}

// Device acquires the platform audio/video input.
type Device interface {
	// Acquire requests device access with the given constraints. Failures
	// should be one of the sentinel errors in this package
	// ([ErrPermissionDenied], [ErrDeviceNotFound], [ErrDeviceBusy]) wrapped
	// with detail, so the controller can classify them; anything else is
	// treated as an unclassified device error.
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}
