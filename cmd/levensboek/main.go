// Command levensboek records one life-story chapter end to end: capture an
// artifact with the synthetic device (or type a text chapter), upload it
// through the presign handshake, and run the AI interview loop on the
// terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mverbeek/levensboek/internal/app"
	"github.com/mverbeek/levensboek/internal/capture"
	"github.com/mverbeek/levensboek/internal/capture/synth"
	"github.com/mverbeek/levensboek/internal/config"
	"github.com/mverbeek/levensboek/internal/conversation"
	"github.com/mverbeek/levensboek/internal/httpx"
	"github.com/mverbeek/levensboek/internal/observe"
	"github.com/mverbeek/levensboek/internal/session"
	"github.com/mverbeek/levensboek/internal/upload"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	journeyID := flag.String("journey", "", "journey ID to record for")
	chapterID := flag.String("chapter", "", "chapter ID to record for")
	mode := flag.String("mode", "audio", "capture modality: video, audio, or text")
	duration := flag.Duration("duration", 10*time.Second, "recording length for media modes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "levensboek: %v\n", err)
		return 1
	}
	if *journeyID == "" || *chapterID == "" {
		fmt.Fprintln(os.Stderr, "levensboek: -journey and -chapter are required")
		return 1
	}

	logger := newLogger(cfg.API.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "levensboek",
	})
	if err != nil {
		slog.Error("telemetry init failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	api, err := httpx.New(cfg.API.BaseURL,
		httpx.WithToken(cfg.API.Token),
		httpx.WithRetries(cfg.Upload.MaxRetries, cfg.Upload.RetryBaseDelay()),
		httpx.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout()}),
	)
	if err != nil {
		slog.Error("transport init failed", "error", err)
		return 1
	}

	machine := session.NewMachine(session.WithAdvisoryTTL(cfg.Session.AdvisoryTTL()))
	controller := capture.NewController(synth.New(), machine, capture.Config{
		ChunkInterval: cfg.Capture.ChunkInterval(),
		MinVideoBytes: cfg.Capture.MinVideoBytes,
		MinAudioBytes: cfg.Capture.MinAudioBytes,
		VideoWidth:    cfg.Capture.VideoWidth,
		VideoHeight:   cfg.Capture.VideoHeight,
	})
	engine := app.NewEngine(app.EngineConfig{
		Config:       cfg,
		Machine:      machine,
		Controller:   controller,
		Uploader:     upload.NewClient(api),
		Conversation: conversation.NewOrchestrator(api),
		Metrics:      observe.DefaultMetrics(),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.Telemetry.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.Telemetry.MetricsAddr, Handler: promhttp.Handler()}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		defer engine.Abandon()
		return recordChapter(gctx, engine, *journeyID, *chapterID, session.Modality(*mode), *duration)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("chapter recording failed", "error", err)
		return 1
	}
	return 0
}

// recordChapter drives one chapter through capture (or text entry), the
// upload handshake, and the interview loop.
func recordChapter(ctx context.Context, engine *app.Engine, journeyID, chapterID string, mode session.Modality, duration time.Duration) error {
	if err := engine.SetMode(mode); err != nil {
		return err
	}

	in := bufio.NewScanner(os.Stdin)
	var step app.NextStep

	switch mode {
	case session.ModalityText:
		fmt.Println("Typ je verhaal en sluit af met een lege regel:")
		var text string
		for in.Scan() && in.Text() != "" {
			text += in.Text() + "\n"
		}
		if err := engine.UpdateText(text); err != nil {
			return err
		}
		fmt.Printf("%d woorden.\n", engine.Machine().WordCount())
		var err error
		if step, err = engine.SaveText(ctx, journeyID, chapterID); err != nil {
			return err
		}
	default:
		if err := engine.StartRecording(ctx); err != nil {
			return err
		}
		fmt.Printf("Opname gestart (%s)...\n", duration)
		select {
		case <-time.After(duration):
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := engine.FinishRecording(ctx); err != nil {
			if errors.Is(err, capture.ErrArtifactTooShort) {
				fmt.Println(engine.Machine().UploadStatus())
				return nil
			}
			return err
		}
		var err error
		if step, err = engine.SubmitRecording(ctx, journeyID, chapterID); err != nil {
			return err
		}
	}

	// Interview loop: keep answering until the interviewer is satisfied.
	for step.Question != nil {
		fmt.Printf("\nVraag: %s\n> ", *step.Question)
		if !in.Scan() {
			break
		}
		step = engine.AnswerQuestion(ctx, chapterID, in.Text())
	}

	if step.Summary != nil {
		fmt.Printf("\nHoofdstuk afgerond na %d beurten.\n", step.Summary.TotalTurns)
		if len(step.Summary.Themes) > 0 {
			fmt.Printf("Thema's: %v\n", step.Summary.Themes)
		}
	} else if step.ProceedToNext {
		fmt.Println("\nJe kunt door naar het volgende hoofdstuk.")
	}
	return nil
}

// newLogger builds the default slog logger for the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
