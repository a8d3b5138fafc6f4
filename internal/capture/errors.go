package capture

import (
	"errors"

	"github.com/mverbeek/levensboek/internal/session"
)

// Sentinel errors for device acquisition failures. Device implementations
// wrap these so the controller can classify the failure.
var (
	// ErrPermissionDenied means the user (or platform policy) refused
	// access to the camera or microphone.
	ErrPermissionDenied = errors.New("capture: device permission denied")

	// ErrDeviceNotFound means no matching input device is present.
	ErrDeviceNotFound = errors.New("capture: no device found")

	// ErrDeviceBusy means another process holds the device.
	ErrDeviceBusy = errors.New("capture: device already in use")
)

// ErrArtifactTooShort is returned by [Controller.EndCapture] when the
// finished artifact is below the modality's minimum size floor.
var ErrArtifactTooShort = errors.New("capture: recording too short")

// Failure is a classified device acquisition failure with its user-facing
// advisory text.
type Failure struct {
	// Message is the Dutch advisory shown to the user.
	Message string

	// SuggestAudioFallback is true when switching to audio-only mode would
	// likely succeed (no camera present while in video mode).
	SuggestAudioFallback bool
}

// AdvisoryTooShort is the advisory shown when a recording is rejected for
// being below the minimum size floor.
const AdvisoryTooShort = "Opname te kort. Probeer het opnieuw."

// ClassifyAcquireFailure maps a device acquisition error to its advisory.
// Unrecognised errors produce a generic message; the error is never
// propagated past the controller.
func ClassifyAcquireFailure(err error, mode session.Modality) Failure {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return Failure{Message: "Toegang tot camera of microfoon geweigerd. Controleer je apparaatinstellingen."}
	case errors.Is(err, ErrDeviceNotFound):
		if mode == session.ModalityVideo {
			return Failure{
				Message:              "Geen camera gevonden. Je kunt ook alleen audio opnemen.",
				SuggestAudioFallback: true,
			}
		}
		return Failure{Message: "Geen microfoon gevonden."}
	case errors.Is(err, ErrDeviceBusy):
		return Failure{Message: "Camera of microfoon is al in gebruik door een ander programma."}
	default:
		return Failure{Message: "Opname kon niet worden gestart."}
	}
}
