// Package app wires the recording-session subsystems into one engine: the
// session state machine, the capture controller, the upload client, and the
// conversation orchestrator.
//
// The engine enforces the workflow ordering: an upload never begins before
// capture has produced a validated artifact, and the interview is never
// continued before the upload handshake (or, for text, the save handshake)
// has succeeded. Interview failures degrade gracefully — the user is moved
// on to the next chapter rather than blocked; the interview is an
// enhancement, not a gate.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mverbeek/levensboek/internal/capture"
	"github.com/mverbeek/levensboek/internal/config"
	"github.com/mverbeek/levensboek/internal/conversation"
	"github.com/mverbeek/levensboek/internal/observe"
	"github.com/mverbeek/levensboek/internal/session"
	"github.com/mverbeek/levensboek/internal/upload"
)

// AdvisoryUploadFailed is shown when the upload handshake fails.
const AdvisoryUploadFailed = "Upload mislukt. Probeer het later opnieuw."

// NextStep tells the UI what to show after a submission resolves.
type NextStep struct {
	// AssetID identifies the stored artifact, when one was uploaded.
	AssetID string

	// Question is the interviewer's next question, nil when there is none.
	Question *string

	// ProceedToNext is true when the "go to next chapter" affordance should
	// be shown.
	ProceedToNext bool

	// Summary is set when the interview for this chapter completed.
	Summary *conversation.Summary
}

// EngineConfig holds all dependencies for an [Engine].
type EngineConfig struct {
	Config       *config.Config
	Machine      *session.Machine
	Controller   *capture.Controller
	Uploader     *upload.Client
	Conversation *conversation.Orchestrator

	// Metrics may be nil to disable instrumentation.
	Metrics *observe.Metrics
}

// Engine owns the capture → upload → interview workflow for one client.
// All exported methods are safe for concurrent use.
type Engine struct {
	cfg     *config.Config
	machine *session.Machine
	ctrl    *capture.Controller
	up      *upload.Client
	conv    *conversation.Orchestrator
	metrics *observe.Metrics
	tracer  trace.Tracer
}

// NewEngine creates an engine from its dependencies.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		cfg:     cfg.Config,
		machine: cfg.Machine,
		ctrl:    cfg.Controller,
		up:      cfg.Uploader,
		conv:    cfg.Conversation,
		metrics: cfg.Metrics,
		tracer:  otel.Tracer("github.com/mverbeek/levensboek/internal/app"),
	}
}

// Machine exposes the session state machine for read access by the UI layer.
func (e *Engine) Machine() *session.Machine {
	return e.machine
}

// SetMode selects the capture modality. Only permitted while idle.
func (e *Engine) SetMode(mode session.Modality) error {
	return e.machine.SetMode(mode)
}

// UpdateText replaces the text-mode content.
func (e *Engine) UpdateText(text string) error {
	return e.machine.SetText(text)
}

// StartPreview acquires the device and enters preview.
func (e *Engine) StartPreview(ctx context.Context) error {
	return e.ctrl.AcquirePreview(ctx)
}

// StopPreview releases the device. Idempotent.
func (e *Engine) StopPreview() {
	e.ctrl.ReleasePreview()
}

// StartRecording begins capturing.
func (e *Engine) StartRecording(ctx context.Context) error {
	if err := e.ctrl.BeginCapture(ctx); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.ActiveSessions.Add(ctx, 1)
	}
	return nil
}

// PauseRecording suspends capture and timer together.
func (e *Engine) PauseRecording() error {
	return e.ctrl.Pause()
}

// ResumeRecording continues a paused capture.
func (e *Engine) ResumeRecording() error {
	return e.ctrl.Resume()
}

// FinishRecording stops capture, releases the device, and validates the
// artifact. A too-short artifact returns [capture.ErrArtifactTooShort] with
// the session already reset to idle.
func (e *Engine) FinishRecording(ctx context.Context) error {
	seconds := e.machine.RecordingSeconds()
	_, err := e.ctrl.EndCapture(ctx)
	if e.metrics != nil {
		e.metrics.ActiveSessions.Add(ctx, -1)
		if err == nil {
			e.metrics.CaptureDuration.Record(ctx, float64(seconds),
				metric.WithAttributes(attribute.String("mode", string(e.machine.Mode()))))
		}
	}
	return err
}

// Abandon discards the current session state and releases any held device.
func (e *Engine) Abandon() {
	e.ctrl.ReleasePreview()
	e.machine.Reset()
}

// SubmitRecording uploads the completed artifact for a chapter and engages
// the interviewer. The returned NextStep is valid even when the interview
// could not be engaged — conversation failures never block progress.
func (e *Engine) SubmitRecording(ctx context.Context, journeyID, chapterID string) (NextStep, error) {
	artifact := e.machine.Artifact()
	if err := e.machine.BeginUpload(); err != nil {
		return NextStep{}, err
	}

	assetID, err := e.store(ctx, journeyID, chapterID, e.machine.Mode(), artifact)
	if err != nil {
		return NextStep{}, err
	}

	if err := e.machine.CompleteUpload(); err != nil {
		return NextStep{}, err
	}

	step := e.engageInterview(ctx, journeyID, chapterID, assetID, "")
	step.AssetID = assetID
	return step, nil
}

// SaveText saves the text-mode content as this chapter's artifact and
// engages the interviewer with the raw text as the response — there is no
// transcription step for text.
func (e *Engine) SaveText(ctx context.Context, journeyID, chapterID string) (NextStep, error) {
	text := e.machine.Text()
	if err := e.machine.BeginUpload(); err != nil {
		return NextStep{}, err
	}

	artifact := &session.Artifact{
		Data:        []byte(text),
		ContentType: "text/plain; charset=utf-8",
	}
	assetID, err := e.store(ctx, journeyID, chapterID, session.ModalityText, artifact)
	if err != nil {
		return NextStep{}, err
	}

	if err := e.machine.CompleteUpload(); err != nil {
		return NextStep{}, err
	}

	step := e.engageInterview(ctx, journeyID, chapterID, assetID, text)
	step.AssetID = assetID
	return step, nil
}

// store runs the three-step upload handshake. On presign or dispatch
// failure the session falls back to its last stable state; on confirm
// failure it stays in uploading — the artifact is not durable yet and must
// not be treated as such.
func (e *Engine) store(ctx context.Context, journeyID, chapterID string, modality session.Modality, artifact *session.Artifact) (string, error) {
	ctx, span := e.tracer.Start(ctx, "upload.handshake")
	defer span.End()
	started := time.Now()

	ticket, err := e.up.RequestTicket(ctx, upload.TicketRequest{
		JourneyID: journeyID,
		ChapterID: chapterID,
		Modality:  modality,
		Filename:  uploadFilename(artifact.ContentType),
		SizeBytes: artifact.Size(),
		Checksum:  upload.Checksum(artifact.Data),
	})
	if err != nil {
		e.failUpload(ctx, "presign", err)
		return "", err
	}

	if err := e.up.Dispatch(ctx, ticket, artifact); err != nil {
		e.failUpload(ctx, "dispatch", err)
		return "", err
	}

	if err := e.up.Confirm(ctx, ticket.AssetID); err != nil {
		// Dispatch landed but durability is unconfirmed: keep the session
		// in uploading with an advisory, no handshake-level retry.
		e.machine.SetUploadStatus(AdvisoryUploadFailed)
		if e.metrics != nil {
			e.metrics.UploadErrors.Add(ctx, 1,
				metric.WithAttributes(attribute.String("stage", "confirm")))
		}
		slog.Error("completion confirmation failed",
			"asset_id", ticket.AssetID,
			"error", err)
		return "", err
	}

	if e.metrics != nil {
		e.metrics.UploadDuration.Record(ctx, time.Since(started).Seconds(),
			metric.WithAttributes(attribute.String("transport", string(ticket.Kind()))))
		e.metrics.UploadBytes.Add(ctx, artifact.Size())
	}
	slog.Info("artifact stored",
		"asset_id", ticket.AssetID,
		"transport", ticket.Kind(),
		"size_bytes", artifact.Size())
	return ticket.AssetID, nil
}

// failUpload returns the session to its last stable state and surfaces the
// upload advisory.
func (e *Engine) failUpload(ctx context.Context, stage string, err error) {
	_ = e.machine.AbandonUpload()
	e.machine.SetUploadStatus(AdvisoryUploadFailed)
	if e.metrics != nil {
		e.metrics.UploadErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("stage", stage)))
	}
	slog.Error("upload handshake failed", "stage", stage, "error", err)
}

// engageInterview starts or continues the chapter's interview. Every
// failure path returns a NextStep that lets the user move on.
func (e *Engine) engageInterview(ctx context.Context, journeyID, chapterID, assetID, text string) NextStep {
	ctx, span := e.tracer.Start(ctx, "conversation.turn")
	defer span.End()
	started := time.Now()

	sessionID, exists := e.conv.SessionFor(chapterID)
	if !exists {
		opening, err := e.conv.Start(ctx, journeyID, chapterID, assetID)
		if err != nil {
			slog.Warn("interview start failed, proceeding without it",
				"chapter_id", chapterID,
				"error", err)
			return NextStep{ProceedToNext: true}
		}
		e.recordTurn(ctx, started)
		if text != "" {
			// Text chapters have no transcription step: the saved text is
			// the first response, answered in the same engagement. If that
			// continuation fails, fall back to the opening question rather
			// than losing the interview.
			turn, err := e.conv.Continue(ctx, opening.SessionID, text)
			if err == nil {
				e.recordTurn(ctx, started)
				return e.foldTurn(ctx, opening.SessionID, turn)
			}
			slog.Warn("first text continuation failed",
				"session_id", opening.SessionID,
				"error", err)
		}
		return NextStep{Question: &opening.OpeningQuestion}
	}

	if e.conv.Complete(sessionID) {
		return NextStep{ProceedToNext: true}
	}

	response := text
	if response == "" {
		var ready bool
		response, ready = e.awaitTranscript(ctx, assetID)
		if !ready {
			slog.Info("transcript not ready, proceeding without interview turn",
				"asset_id", assetID)
			return NextStep{ProceedToNext: true}
		}
	}

	return e.continueTurn(ctx, sessionID, response, started)
}

// AnswerQuestion submits a typed answer to the chapter's current interview
// question. Like every conversation path, failures degrade to the
// next-chapter affordance.
func (e *Engine) AnswerQuestion(ctx context.Context, chapterID, answer string) NextStep {
	sessionID, ok := e.conv.SessionFor(chapterID)
	if !ok || e.conv.Complete(sessionID) {
		return NextStep{ProceedToNext: true}
	}
	return e.continueTurn(ctx, sessionID, answer, time.Now())
}

// continueTurn performs one continuation round-trip and folds the result
// into a NextStep.
func (e *Engine) continueTurn(ctx context.Context, sessionID, response string, started time.Time) NextStep {
	turn, err := e.conv.Continue(ctx, sessionID, response)
	if err != nil {
		if !errors.Is(err, conversation.ErrSessionComplete) {
			slog.Warn("interview continuation failed, proceeding without it",
				"session_id", sessionID,
				"error", err)
		}
		return NextStep{ProceedToNext: true}
	}
	e.recordTurn(ctx, started)
	return e.foldTurn(ctx, sessionID, turn)
}

// foldTurn converts a successful turn into a NextStep, ending the session
// when the interviewer declared it complete.
func (e *Engine) foldTurn(ctx context.Context, sessionID string, turn conversation.Turn) NextStep {
	if turn.Complete {
		step := NextStep{ProceedToNext: true}
		if summary, err := e.conv.End(ctx, sessionID); err == nil {
			step.Summary = &summary
		} else {
			slog.Warn("interview end failed", "session_id", sessionID, "error", err)
		}
		return step
	}
	return NextStep{Question: turn.NextQuestion}
}

// awaitTranscript polls for the artifact's transcript within the
// configured grace period.
func (e *Engine) awaitTranscript(ctx context.Context, assetID string) (string, bool) {
	deadline := time.Now().Add(e.cfg.Conversation.TranscriptWait())
	for {
		text, ready, err := e.conv.Transcript(ctx, assetID)
		if err != nil {
			slog.Warn("transcript fetch failed", "asset_id", assetID, "error", err)
			return "", false
		}
		if ready {
			return text, true
		}
		if time.Now().After(deadline) {
			return "", false
		}
		select {
		case <-time.After(e.cfg.Conversation.TranscriptPoll()):
		case <-ctx.Done():
			return "", false
		}
	}
}

func (e *Engine) recordTurn(ctx context.Context, started time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.Turns.Add(ctx, 1)
	e.metrics.TurnDuration.Record(ctx, time.Since(started).Seconds())
}

// uploadFilename derives a unique artifact filename from the content type.
func uploadFilename(contentType string) string {
	ext := ".bin"
	base := contentType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	switch strings.TrimSpace(base) {
	case "video/webm":
		ext = ".webm"
	case "video/mp4":
		ext = ".mp4"
	case "audio/webm":
		ext = ".weba"
	case "audio/mp4":
		ext = ".m4a"
	case "audio/wav":
		ext = ".wav"
	case "text/plain":
		ext = ".txt"
	}
	return fmt.Sprintf("%s%s", uuid.NewString(), ext)
}
