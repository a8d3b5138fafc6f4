// Package conversation drives the multi-turn AI interview for one chapter:
// starting a session on the first uploaded artifact, continuing it with
// each response, and ending it with a summary.
//
// The server is authoritative for turn numbers; responses whose turn number
// does not exceed the last recorded one are logged and dropped. Once a
// session is complete, further continuation is rejected locally without a
// network call.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mverbeek/levensboek/internal/httpx"
)

// ErrSessionComplete is returned by Continue once the session has been
// observed complete. The rejection is local — no request is made.
var ErrSessionComplete = errors.New("conversation: session already complete")

// ErrStaleTurn is returned when the server's turn number does not exceed
// the previously recorded one. The response is dropped, not retried.
var ErrStaleTurn = errors.New("conversation: stale turn number")

// ErrNoSession is returned when no session is known under the given ID.
var ErrNoSession = errors.New("conversation: unknown session")

// Opening is the result of starting a session.
type Opening struct {
	SessionID       string
	OpeningQuestion string
}

// Turn is the result of one continuation.
type Turn struct {
	// NextQuestion is nil once the interview is complete.
	NextQuestion *string
	TurnNumber   int
	Complete     bool
	// StoryDepth is the server-computed narrative richness score; nil until
	// the server has enough material to score.
	StoryDepth *float64
}

// Summary is returned when a session ends.
type Summary struct {
	TotalTurns      int
	Completed       bool
	StoryDepth      *float64
	Themes          []string
	PeopleMentioned []string
	PlacesMentioned []string
}

// sessionState is the orchestrator's book-keeping for one active session.
type sessionState struct {
	chapterID  string
	turnNumber int
	complete   bool
}

// Orchestrator maintains the interview sessions. At most one session is
// active per chapter. Safe for concurrent use.
type Orchestrator struct {
	api *httpx.Client

	mu        sync.Mutex
	sessions  map[string]*sessionState // by session ID
	byChapter map[string]string        // chapter ID → session ID
}

// NewOrchestrator creates an orchestrator on the shared transport.
func NewOrchestrator(api *httpx.Client) *Orchestrator {
	return &Orchestrator{
		api:       api,
		sessions:  make(map[string]*sessionState),
		byChapter: make(map[string]string),
	}
}

// SessionFor returns the active session ID for a chapter, if any.
func (o *Orchestrator) SessionFor(chapterID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id, ok := o.byChapter[chapterID]
	return id, ok
}

// Complete reports whether the given session has been observed complete.
func (o *Orchestrator) Complete(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.sessions[sessionID]
	return ok && st.complete
}

// Start opens the interview for a chapter. Called exactly once per chapter,
// on the first successful artifact.
func (o *Orchestrator) Start(ctx context.Context, journeyID, chapterID, assetID string) (Opening, error) {
	o.mu.Lock()
	if id, ok := o.byChapter[chapterID]; ok {
		o.mu.Unlock()
		return Opening{}, fmt.Errorf("conversation: chapter %s already has session %s", chapterID, id)
	}
	o.mu.Unlock()

	var resp startResponse
	err := o.api.DoJSON(ctx, http.MethodPost, "/assistant/conversation/start", startRequest{
		JourneyID: journeyID,
		ChapterID: chapterID,
		AssetID:   assetID,
	}, &resp)
	if err != nil {
		return Opening{}, fmt.Errorf("conversation: start: %w", err)
	}

	o.mu.Lock()
	o.sessions[resp.SessionID] = &sessionState{chapterID: chapterID}
	o.byChapter[chapterID] = resp.SessionID
	o.mu.Unlock()

	slog.Info("conversation started",
		"session_id", resp.SessionID,
		"chapter_id", chapterID)
	return Opening{SessionID: resp.SessionID, OpeningQuestion: resp.OpeningQuestion}, nil
}

// Continue submits a response (a transcript, or the raw text for text
// chapters) and returns the next turn.
func (o *Orchestrator) Continue(ctx context.Context, sessionID, responseText string) (Turn, error) {
	o.mu.Lock()
	st, ok := o.sessions[sessionID]
	if !ok {
		o.mu.Unlock()
		return Turn{}, ErrNoSession
	}
	if st.complete {
		o.mu.Unlock()
		return Turn{}, ErrSessionComplete
	}
	lastTurn := st.turnNumber
	o.mu.Unlock()

	var resp continueResponse
	err := o.api.DoJSON(ctx, http.MethodPost, "/assistant/conversation/continue", continueRequest{
		SessionID:    sessionID,
		ResponseText: responseText,
	}, &resp)
	if err != nil {
		return Turn{}, fmt.Errorf("conversation: continue: %w", err)
	}

	if resp.TurnNumber <= lastTurn {
		slog.Error("server turn number did not advance, dropping response",
			"session_id", sessionID,
			"got", resp.TurnNumber,
			"last", lastTurn)
		return Turn{}, ErrStaleTurn
	}

	o.mu.Lock()
	st.turnNumber = resp.TurnNumber
	st.complete = resp.ConversationComplete
	o.mu.Unlock()

	turn := Turn{
		NextQuestion: resp.NextQuestion,
		TurnNumber:   resp.TurnNumber,
		Complete:     resp.ConversationComplete,
		StoryDepth:   resp.StoryDepth,
	}
	if turn.Complete {
		turn.NextQuestion = nil
	}
	return turn, nil
}

// End closes the session and frees it, returning the interview summary.
func (o *Orchestrator) End(ctx context.Context, sessionID string) (Summary, error) {
	o.mu.Lock()
	st, ok := o.sessions[sessionID]
	o.mu.Unlock()
	if !ok {
		return Summary{}, ErrNoSession
	}

	var resp endResponse
	err := o.api.DoJSON(ctx, http.MethodPost, "/assistant/conversation/end", endRequest{
		SessionID: sessionID,
	}, &resp)
	if err != nil {
		return Summary{}, fmt.Errorf("conversation: end: %w", err)
	}

	o.mu.Lock()
	delete(o.sessions, sessionID)
	delete(o.byChapter, st.chapterID)
	o.mu.Unlock()

	return Summary{
		TotalTurns:      resp.TotalTurns,
		Completed:       resp.Completed,
		StoryDepth:      resp.StoryDepth,
		Themes:          resp.KeyThemes,
		PeopleMentioned: resp.PeopleMentioned,
		PlacesMentioned: resp.PlacesMentioned,
	}, nil
}

// Transcript fetches the transcript for an uploaded artifact. ready is
// false when transcription is still running — absence is not an error; the
// caller may poll or continue without it.
func (o *Orchestrator) Transcript(ctx context.Context, assetID string) (text string, ready bool, err error) {
	var resp transcriptResponse
	path := fmt.Sprintf("/media/%s/transcript", assetID)
	if err := o.api.DoJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		var apiErr *httpx.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("conversation: fetch transcript: %w", err)
	}
	if resp.Text == "" {
		return "", false, nil
	}
	return resp.Text, true, nil
}
