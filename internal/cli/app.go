package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/xmlbot/internal/chat"
	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/soyeahso/xmlbot/internal/hooks"
	"github.com/soyeahso/xmlbot/internal/logging"
	"github.com/soyeahso/xmlbot/internal/robot"
	"github.com/soyeahso/xmlbot/internal/store"
)

// hookDrainTimeout bounds how long Close waits for async hooks.
const hookDrainTimeout = 5 * time.Second

// app is the fully wired runtime shared by the chat and gateway commands.
type app struct {
	cfg      config.Config
	log      *logging.Logger
	backend  *store.Backend
	hooks    *hooks.Manager
	book     *robot.Book
	chat     *chat.Controller
	runner   *robot.Runner
	recorder *store.Recorder

	closers []func() error
}

// appOptions tweaks wiring per command.
type appOptions struct {
	// minLevel is used when neither --log-level nor the config sets a level.
	minLevel string
}

// loadConfig reads the config file and applies the --log-level flag.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// openApp builds the logger, storage, hooks, client book, session controller
// and robot runner from cfg, then initializes the controller. An
// initialization failure is not an error here: it is shown to the user
// through the controller's state.
func openApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating directories: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel == "" && opts.minLevel != "" {
		level = opts.minLevel
	}
	appLog, closeLog, err := logging.Open(logging.Options{
		Level: level,
		Style: cfg.Logging.ConsoleStyle,
		File:  cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: appLog}
	a.closers = append(a.closers, closeLog)

	backend, err := store.OpenBackend(cfg.Store, paths.DatabasePath(), appLog)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.backend = backend
	a.closers = append(a.closers, backend.Close)

	a.hooks = hooks.NewManager(appLog)
	if n := hooks.RegisterCommands(a.hooks, cfg.Hooks); n > 0 {
		appLog.Info().Int("count", n).Msg("command hooks registered")
	}
	a.closers = append(a.closers, func() error {
		a.hooks.Wait(hookDrainTimeout)
		return nil
	})

	a.book = robot.NewBook(backend.Clients, appLog)
	if err := a.book.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("loading clients: %w", err)
	}

	var credential func() string
	if cfg.Provider != "echo" {
		credential = func() string { return config.ResolveCredential(cfg) }
	}
	a.chat = chat.NewController(chat.Options{
		Credential:        credential,
		Connect:           chat.ConfigConnector(cfg, appLog),
		SystemInstruction: cfg.Assistant.SystemInstruction,
		Greeting:          cfg.Assistant.Greeting,
		Fallback:          cfg.Assistant.Fallback,
		Hooks:             a.hooks,
		Log:               appLog,
	})

	if err := a.chat.Initialize(); err == nil {
		rec, err := store.NewRecorder(ctx, backend.Transcripts, a.chat.Provider(), appLog)
		if err != nil {
			appLog.Warn().Err(err).Msg("transcript recording disabled")
		} else {
			a.recorder = rec
			unsubscribe := a.chat.Subscribe(rec.Observe)
			rec.Observe(a.chat.Snapshot())
			a.closers = append(a.closers, func() error {
				unsubscribe()
				return rec.Close()
			})
		}
	}

	a.runner = robot.NewRunner(a.book, a.chat, cfg.Robot, a.hooks, appLog)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.log != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
