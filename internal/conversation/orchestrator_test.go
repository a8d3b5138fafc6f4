package conversation_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mverbeek/levensboek/internal/conversation"
	"github.com/mverbeek/levensboek/internal/httpx"
)

// interviewServer fakes the assistant endpoints with server-side turn
// numbering.
type interviewServer struct {
	*httptest.Server

	turn          atomic.Int32
	completeAfter int32
	continues     atomic.Int32
	ends          atomic.Int32
}

func newInterviewServer(t *testing.T, completeAfter int32) *interviewServer {
	t.Helper()
	s := &interviewServer{completeAfter: completeAfter}
	mux := http.NewServeMux()
	mux.HandleFunc("/assistant/conversation/start", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"session_id":       "sess-1",
			"opening_question": "Waar ben je geboren?",
		})
	})
	mux.HandleFunc("/assistant/conversation/continue", func(w http.ResponseWriter, r *http.Request) {
		s.continues.Add(1)
		n := s.turn.Add(1)
		complete := n >= s.completeAfter
		resp := map[string]any{
			"turn_number":           n,
			"conversation_complete": complete,
			"story_depth":           0.4,
		}
		if !complete {
			resp["next_question"] = "Vertel daar eens meer over."
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/assistant/conversation/end", func(w http.ResponseWriter, r *http.Request) {
		s.ends.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"total_turns":      s.turn.Load(),
			"completed":        true,
			"story_depth":      0.7,
			"key_themes":       []string{"jeugd", "familie"},
			"people_mentioned": []string{"moeder"},
			"places_mentioned": []string{"Rotterdam"},
		})
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newOrchestrator(t *testing.T, url string) *conversation.Orchestrator {
	t.Helper()
	api, err := httpx.New(url, httpx.WithRetries(0, time.Millisecond))
	if err != nil {
		t.Fatalf("httpx.New() error: %v", err)
	}
	return conversation.NewOrchestrator(api)
}

func TestStartAndContinue_TurnsAdvance(t *testing.T) {
	t.Parallel()
	srv := newInterviewServer(t, 100)
	o := newOrchestrator(t, srv.URL)
	ctx := context.Background()

	opening, err := o.Start(ctx, "j1", "ch1", "asset-1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if opening.OpeningQuestion != "Waar ben je geboren?" {
		t.Errorf("OpeningQuestion = %q", opening.OpeningQuestion)
	}
	if id, ok := o.SessionFor("ch1"); !ok || id != opening.SessionID {
		t.Errorf("SessionFor() = %q, %v", id, ok)
	}

	turn, err := o.Continue(ctx, opening.SessionID, "In Rotterdam.")
	if err != nil {
		t.Fatalf("Continue() error: %v", err)
	}
	if turn.TurnNumber != 1 {
		t.Errorf("TurnNumber = %d, want 1", turn.TurnNumber)
	}
	if turn.NextQuestion == nil {
		t.Fatal("NextQuestion = nil before completion")
	}
	if turn.StoryDepth == nil || *turn.StoryDepth != 0.4 {
		t.Errorf("StoryDepth = %v", turn.StoryDepth)
	}

	turn, err = o.Continue(ctx, opening.SessionID, "Vlak na de oorlog.")
	if err != nil {
		t.Fatalf("second Continue() error: %v", err)
	}
	if turn.TurnNumber != 2 {
		t.Errorf("TurnNumber = %d, want 2", turn.TurnNumber)
	}
}

func TestStart_OnePerChapter(t *testing.T) {
	t.Parallel()
	srv := newInterviewServer(t, 100)
	o := newOrchestrator(t, srv.URL)
	ctx := context.Background()

	if _, err := o.Start(ctx, "j1", "ch1", "asset-1"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if _, err := o.Start(ctx, "j1", "ch1", "asset-2"); err == nil {
		t.Error("second Start() for the same chapter should fail")
	}
}

func TestContinue_CompleteRejectedLocally(t *testing.T) {
	t.Parallel()
	srv := newInterviewServer(t, 1)
	o := newOrchestrator(t, srv.URL)
	ctx := context.Background()

	opening, err := o.Start(ctx, "j1", "ch1", "asset-1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	turn, err := o.Continue(ctx, opening.SessionID, "antwoord")
	if err != nil {
		t.Fatalf("Continue() error: %v", err)
	}
	if !turn.Complete {
		t.Fatal("Complete = false, want true")
	}
	if turn.NextQuestion != nil {
		t.Errorf("NextQuestion = %q on completion, want nil", *turn.NextQuestion)
	}
	if !o.Complete(opening.SessionID) {
		t.Error("Complete() = false after completed turn")
	}

	before := srv.continues.Load()
	_, err = o.Continue(ctx, opening.SessionID, "nog iets")
	if !errors.Is(err, conversation.ErrSessionComplete) {
		t.Fatalf("Continue() after completion = %v, want ErrSessionComplete", err)
	}
	if got := srv.continues.Load(); got != before {
		t.Errorf("continue calls = %d, want %d — rejection must be local", got, before)
	}
}

func TestContinue_StaleTurnDropped(t *testing.T) {
	t.Parallel()
	// Server that repeats the same turn number forever.
	mux := http.NewServeMux()
	mux.HandleFunc("/assistant/conversation/start", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"session_id": "sess-1", "opening_question": "?"})
	})
	mux.HandleFunc("/assistant/conversation/continue", func(w http.ResponseWriter, r *http.Request) {
		q := "volgende?"
		json.NewEncoder(w).Encode(map[string]any{
			"next_question": q,
			"turn_number":   1,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	o := newOrchestrator(t, srv.URL)
	ctx := context.Background()
	opening, err := o.Start(ctx, "j1", "ch1", "asset-1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if _, err := o.Continue(ctx, opening.SessionID, "a"); err != nil {
		t.Fatalf("first Continue() error: %v", err)
	}
	// Second response repeats turn 1: dropped, state unchanged.
	if _, err := o.Continue(ctx, opening.SessionID, "b"); !errors.Is(err, conversation.ErrStaleTurn) {
		t.Fatalf("Continue() = %v, want ErrStaleTurn", err)
	}
	if o.Complete(opening.SessionID) {
		t.Error("dropped response must not mutate session state")
	}
}

func TestContinue_UnknownSession(t *testing.T) {
	t.Parallel()
	srv := newInterviewServer(t, 100)
	o := newOrchestrator(t, srv.URL)
	if _, err := o.Continue(context.Background(), "nope", "x"); !errors.Is(err, conversation.ErrNoSession) {
		t.Errorf("Continue() = %v, want ErrNoSession", err)
	}
}

func TestEnd_SummaryAndCleanup(t *testing.T) {
	t.Parallel()
	srv := newInterviewServer(t, 100)
	o := newOrchestrator(t, srv.URL)
	ctx := context.Background()

	opening, err := o.Start(ctx, "j1", "ch1", "asset-1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if _, err := o.Continue(ctx, opening.SessionID, "a"); err != nil {
		t.Fatalf("Continue() error: %v", err)
	}

	summary, err := o.End(ctx, opening.SessionID)
	if err != nil {
		t.Fatalf("End() error: %v", err)
	}
	if summary.TotalTurns != 1 || !summary.Completed {
		t.Errorf("summary = %+v", summary)
	}
	if len(summary.Themes) != 2 || summary.Themes[0] != "jeugd" {
		t.Errorf("Themes = %v", summary.Themes)
	}
	if len(summary.PlacesMentioned) != 1 || summary.PlacesMentioned[0] != "Rotterdam" {
		t.Errorf("PlacesMentioned = %v", summary.PlacesMentioned)
	}

	// The chapter is free for a new session.
	if _, ok := o.SessionFor("ch1"); ok {
		t.Error("session still registered after End")
	}
	if _, err := o.Start(ctx, "j1", "ch1", "asset-2"); err != nil {
		t.Errorf("Start() after End error: %v", err)
	}
}

func TestTranscript_NotReady(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/media/pending/transcript", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"transcript niet gereed"}`, http.StatusNotFound)
	})
	mux.HandleFunc("/media/empty/transcript", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"text": ""})
	})
	mux.HandleFunc("/media/done/transcript", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"text": "Ik ben geboren in Rotterdam."})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	o := newOrchestrator(t, srv.URL)
	ctx := context.Background()

	if _, ready, err := o.Transcript(ctx, "pending"); err != nil || ready {
		t.Errorf("Transcript(pending) = ready=%v err=%v, want not ready and no error", ready, err)
	}
	if _, ready, err := o.Transcript(ctx, "empty"); err != nil || ready {
		t.Errorf("Transcript(empty) = ready=%v err=%v, want not ready and no error", ready, err)
	}
	text, ready, err := o.Transcript(ctx, "done")
	if err != nil || !ready {
		t.Fatalf("Transcript(done) = ready=%v err=%v", ready, err)
	}
	if text != "Ik ben geboren in Rotterdam." {
		t.Errorf("text = %q", text)
	}
}
