package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vango-go/cortes-live/internal/dotenv"
	"github.com/vango-go/cortes-live/pkg/client/avatar"
	"github.com/vango-go/cortes-live/pkg/client/chat"
	"github.com/vango-go/cortes-live/pkg/client/clock"
	"github.com/vango-go/cortes-live/pkg/client/connection"
	"github.com/vango-go/cortes-live/pkg/client/narration"
	"github.com/vango-go/cortes-live/pkg/client/settings"
	"github.com/vango-go/cortes-live/pkg/client/speech"
	"github.com/vango-go/cortes-live/pkg/core/persona"
	"github.com/vango-go/cortes-live/pkg/core/types"
)

const scopeName = "github.com/vango-go/cortes-live/cmd/cortes-chat"

type player interface {
	speech.Player
	io.Closer
}

type chatDeps struct {
	getenv     func(string) string
	openStore  func(ctx context.Context, path string) (*settings.SQLite, error)
	newPlayer  func() (player, error)
	runProgram func(ctx context.Context, a *app) error
}

func defaultChatDeps() chatDeps {
	return chatDeps{
		getenv:     os.Getenv,
		openStore:  settings.OpenSQLite,
		newPlayer:  func() (player, error) { return newMalgoPlayer() },
		runProgram: runProgram,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(runMain(ctx, os.Args[1:], os.Stderr, defaultChatDeps()))
}

func runMain(ctx context.Context, args []string, stderr io.Writer, deps chatDeps) int {
	if stderr == nil {
		stderr = io.Discard
	}
	if _, err := dotenv.LoadFirst(".env", "../.env"); err != nil {
		fmt.Fprintf(stderr, "load .env: %v\n", err)
		return 1
	}

	cfg, err := parseChatConfig(args, deps.getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "usage: cortes-chat [-base-url URL] [-lang en|es|pt] [-mode text|avatar] [-settings PATH] [-persona FILE] [-log-file PATH] [-no-audio]")
			return 0
		}
		fmt.Fprintf(stderr, "cortes-chat: %v\n", err)
		return 2
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "cortes-chat: %v\n", err)
		return 1
	}
	defer closeLog()

	if err := runChat(ctx, cfg, logger, deps); err != nil {
		logger.Error("chat client exited", "error", err)
		fmt.Fprintf(stderr, "cortes-chat: %v\n", err)
		return 1
	}
	return 0
}

// newLogger writes to the OpenTelemetry bridge unless a log file is given;
// stderr belongs to the terminal UI.
func newLogger(cfg chatConfig) (*slog.Logger, func(), error) {
	if cfg.LogFile == "" {
		return otelslog.NewLogger(scopeName), func() {}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { _ = f.Close() }, nil
}

func runChat(ctx context.Context, cfg chatConfig, logger *slog.Logger, deps chatDeps) error {
	if deps.openStore == nil || deps.runProgram == nil {
		return errors.New("missing chat dependencies")
	}
	a, cleanup, err := buildApp(ctx, cfg, logger, deps)
	if err != nil {
		return err
	}
	defer cleanup()
	return deps.runProgram(ctx, a)
}

func buildApp(ctx context.Context, cfg chatConfig, logger *slog.Logger, deps chatDeps) (*app, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*app, func(), error) {
		cleanup()
		return nil, nil, err
	}

	if dir := filepath.Dir(cfg.SettingsPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fail(fmt.Errorf("create settings dir: %w", err))
		}
	}
	store, err := deps.openStore(ctx, cfg.SettingsPath)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = store.Close() })

	if cfg.Lang != "" {
		lang, _ := types.ParseLanguage(cfg.Lang)
		if err := store.Set(ctx, settings.KeyLanguage, string(lang)); err != nil {
			return fail(err)
		}
	}
	if cfg.Mode != "" {
		if err := store.Set(ctx, settings.KeyChatMode, cfg.Mode); err != nil {
			return fail(err)
		}
	}
	lang := types.LanguageOr(settings.StringOr(ctx, store, settings.KeyLanguage, ""), types.DefaultLanguage)

	catalog := persona.Default()
	if cfg.PersonaFile != "" {
		if catalog, err = persona.LoadFile(cfg.PersonaFile); err != nil {
			return fail(fmt.Errorf("load persona: %w", err))
		}
	}

	conn, err := connection.New(connection.Options{
		URL:      cfg.WSURL,
		Dial:     connection.WebsocketDialer(cfg.DialTimeout),
		Logger:   logger,
		Language: lang,
	})
	if err != nil {
		return fail(err)
	}

	a := &app{logger: logger, conn: conn, sections: catalog.Sections()}
	chatOpts := chat.Options{Transport: conn, Store: store, Logger: logger}

	var out player
	if !cfg.NoAudio && deps.newPlayer != nil {
		if out, err = deps.newPlayer(); err != nil {
			logger.Warn("audio unavailable, continuing text only", "error", err)
			out = nil
		}
	}
	if out != nil {
		closers = append(closers, func() { _ = out.Close() })

		httpClient := &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		}
		av, err := avatar.New(avatar.Options{
			Tokens: avatar.GatewayTokens(cfg.BaseURL, httpClient),
			Logger: logger,
			OnState: func(connected bool) {
				logger.Info("avatar state", "connected", connected)
			},
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = av.Close() })
		keepalive := speech.NewKeepalive(av, clock.Real{}, logger)
		closers = append(closers, keepalive.Stop)

		chatGain := speech.NewGain(ctx, store, settings.KeyChatbotVolume)
		narrationGain := speech.NewGain(ctx, store, settings.KeyNarratorVolume)
		pipeline, err := speech.NewPipeline(speech.Options{
			Synthesizer:   speech.NewHTTPSynthesizer(cfg.BaseURL, httpClient),
			Player:        out,
			Sink:          av,
			Gain:          chatGain,
			NarrationGain: narrationGain,
			Keepalive:     keepalive,
			Logger:        logger,
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, pipeline.Close)

		narrator, err := narration.New(ctx, narration.Options{
			Speaker:  pipeline,
			Catalog:  catalog,
			Store:    store,
			Logger:   logger,
			Language: lang,
		})
		if err != nil {
			return fail(err)
		}

		a.avatar = av
		a.keepalive = keepalive
		a.narrator = narrator
		a.chatGain = chatGain
		a.narGain = narrationGain
		chatOpts.Speaker = pipeline
		chatOpts.Narrator = narrator
	}

	client, err := chat.New(ctx, chatOpts)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = client.Close() })
	a.chat = client
	return a, cleanup, nil
}

func runProgram(ctx context.Context, a *app) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	p := tea.NewProgram(newModel(gctx, a), tea.WithAltScreen(), tea.WithContext(gctx))
	a.chat.OnUpdate(func() { p.Send(refreshMsg{}) })

	g.Go(func() error {
		defer cancel()
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) && gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		p.Send(errMsg{err: startSession(gctx, a)})
		return nil
	})
	return g.Wait()
}

// startSession opens the conversation, restores avatar mode when it was
// persisted, and shows the landing section.
func startSession(ctx context.Context, a *app) error {
	if err := a.chat.Open(ctx); err != nil {
		return err
	}
	if a.chat.Mode() == chat.ModeAvatar {
		if err := a.startAvatar(ctx); err != nil {
			_ = a.chat.SetMode(ctx, chat.ModeText)
			return fmt.Errorf("avatar unavailable, using text mode: %w", err)
		}
	}
	a.MoveSection(ctx, 0)
	return nil
}
