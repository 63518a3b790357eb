package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"markestedt/tokenspark/clipboard"
	"markestedt/tokenspark/clock"
	"markestedt/tokenspark/config"
	"markestedt/tokenspark/input"
	"markestedt/tokenspark/notify"
	"markestedt/tokenspark/pipeline"
	"markestedt/tokenspark/platform"
	"markestedt/tokenspark/postprocess"
	"markestedt/tokenspark/selection"
	"markestedt/tokenspark/storage"
	"markestedt/tokenspark/systray"
	"markestedt/tokenspark/transform"
	"markestedt/tokenspark/web"
)

// Hotkey binding tags
const (
	tagReplace = "replace"
	tagDisplay = "display"
)

// Agent coordinates hotkey detection, the pipeline and its surfaces
type Agent struct {
	store    *config.Store
	secrets  *config.SecretStore
	hotkey   platform.Hotkey
	orch     *pipeline.Orchestrator
	notifier *notify.Notifier
	db       *storage.DB
	web      *web.Server
	tray     *systray.SystrayManager
}

// AgentOptions selects the optional surfaces
type AgentOptions struct {
	Dir  string
	Tray bool
}

// NewAgent creates a new agent instance
func NewAgent(store *config.Store, opts AgentOptions) (*Agent, error) {
	cfg := store.Current()
	clk := clock.Real()

	a := &Agent{
		store:    store,
		secrets:  config.NewSecretStore(opts.Dir),
		hotkey:   platform.NewHotkey(),
		notifier: notify.New(store),
	}

	sel, err := newSelection(cfg, clk)
	if err != nil {
		return nil, err
	}

	cleanup, err := newCleanup(cfg, opts.Dir)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()

	var recorder pipeline.Recorder
	if cfg.History.Enabled {
		db, err := storage.Open(opts.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		a.db = db
		recorder = storage.NewRecorder(db, store)
	}

	deps := pipeline.Deps{
		Selection: sel,
		Providers: newProviders(a.secrets),
		Secrets:   a.secrets,
		Settings:  store,
		Clock:     clk,
		Presenter: notifyPresenter{a.notifier},
		Notifier:  a.notifier,
		Recorder:  recorder,
		Cleanup:   cleanup,
		Metrics:   pipeline.NewMetrics(registry),
	}

	webPort := 0
	if cfg.Web.Enabled {
		webPort = cfg.Web.Port
		a.web = web.NewServer(web.Options{
			Port:     webPort,
			Store:    store,
			DB:       a.db,
			Secrets:  a.secrets,
			Gatherer: registry,
			OnResult: func(url string) {
				if err := systray.OpenURL(url); err != nil {
					slog.Warn("Failed to open result page", "url", url, "error", err)
				}
			},
		})
		deps.Presenter = a.web
		deps.Observers = append(deps.Observers, a.web)
	}

	if opts.Tray {
		a.tray = systray.NewSystrayManager(webPort, nil, store, invokerFunc(a.invoke))
		deps.Progress = a.tray
	}

	orch, err := pipeline.New(deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orch = orch
	if a.web != nil {
		a.web.SetOrchestrator(orch)
	}

	return a, nil
}

func newSelection(cfg *config.Config, clk clock.Clock) (*selection.Protocol, error) {
	opts := selection.Options{
		Timing: selection.Timing{
			CopySettle:  config.Ms(cfg.Timing.CopySettleMs),
			WriteSettle: config.Ms(cfg.Timing.WriteSettleMs),
			PasteSettle: config.Ms(cfg.Timing.PasteSettleMs),
		},
	}

	if cfg.Chords.Copy != "" {
		c, err := config.ParseChord(cfg.Chords.Copy)
		if err != nil {
			return nil, fmt.Errorf("invalid copy chord: %w", err)
		}
		opts.CopyChord = c
	}
	if cfg.Chords.Paste != "" {
		c, err := config.ParseChord(cfg.Chords.Paste)
		if err != nil {
			return nil, fmt.Errorf("invalid paste chord: %w", err)
		}
		opts.PasteChord = c
	}

	clip := clipboard.NewManager(platform.NewClipboard())
	inj := input.NewInjector(platform.NewKeySender(), clk, config.Ms(cfg.Timing.KeySettleMs))
	return selection.New(clip, inj, clk, opts), nil
}

func newCleanup(cfg *config.Config, dir string) (*postprocess.Pipeline, error) {
	path := cfg.Output.GlossaryPath
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	glossary, err := postprocess.LoadGlossary(path)
	if err != nil {
		return nil, err
	}
	if glossary.Len() > 0 {
		slog.Info("Glossary loaded", "path", path, "entries", glossary.Len())
	}
	return postprocess.New(postprocess.Options{
		StripFences: cfg.Output.StripFences,
		Glossary:    glossary,
	}), nil
}

// newProviders builds a provider per invocation so provider switches apply
// to the next trigger
func newProviders(creds transform.Credentials) pipeline.ProviderFunc {
	client := &http.Client{}
	return func(name string) (transform.Provider, error) {
		return transform.NewProvider(name, creds, client)
	}
}

// Tray returns the tray manager, nil when running headless
func (a *Agent) Tray() *systray.SystrayManager {
	return a.tray
}

func (a *Agent) invoke(mode pipeline.Mode) bool {
	return a.orch.Invoke(mode)
}

// bindings parses the configured hotkeys. An empty hotkey is skipped.
func bindings(cfg *config.Config) ([]platform.Binding, error) {
	var out []platform.Binding
	for _, hk := range []struct{ tag, combo string }{
		{tagReplace, cfg.Hotkeys.Replace},
		{tagDisplay, cfg.Hotkeys.Display},
	} {
		if hk.combo == "" {
			continue
		}
		kc, err := config.ParseHotkey(hk.combo)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s hotkey: %w", hk.tag, err)
		}
		combo, err := kc.Platform()
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s hotkey: %w", hk.tag, err)
		}
		out = append(out, platform.Binding{Combo: combo, Tag: hk.tag})
	}
	return out, nil
}

func modeForTag(tag string) (pipeline.Mode, bool) {
	switch tag {
	case tagReplace:
		return pipeline.Replace, true
	case tagDisplay:
		return pipeline.Display, true
	default:
		return 0, false
	}
}

// Run starts the agent's main event loop
func (a *Agent) Run(ctx context.Context) error {
	cfg := a.store.Current()

	if _, ok, _ := a.secrets.LoadSecret(); !ok {
		slog.Warn("No API key configured, invocations will fail until one is set", "hint", "tokenspark secret set")
	}

	webErr := make(chan error, 1)
	if a.web != nil {
		go func() { webErr <- a.web.Start(ctx) }()
	}

	binds, err := bindings(cfg)
	if err != nil {
		return err
	}

	var events <-chan platform.Event
	if len(binds) > 0 {
		events, err = a.hotkey.Listen(ctx, binds)
		if err != nil {
			return fmt.Errorf("failed to start hotkey listener: %w", err)
		}
	}

	slog.Info("TokenSpark started",
		"replace", cfg.Hotkeys.Replace,
		"display", cfg.Hotkeys.Display,
		"provider", cfg.API.Provider,
		"model", cfg.API.Model,
		"profile", cfg.ActiveProfile)

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-webErr:
			if err != nil {
				return err
			}

		case evt, ok := <-events:
			if !ok {
				slog.Warn("Hotkey listener stopped")
				events = nil
				continue
			}
			mode, known := modeForTag(evt.Tag)
			if !known {
				slog.Warn("Unknown hotkey event", "tag", evt.Tag)
				continue
			}
			if !a.orch.Invoke(mode) {
				slog.Debug("Hotkey ignored, invocation in progress", "mode", mode)
			}
		}
	}
}

// Close aborts an in-flight invocation and releases resources
func (a *Agent) Close() {
	if a.orch != nil {
		a.orch.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("Failed to close history", "error", err)
		}
	}
}

type invokerFunc func(mode pipeline.Mode) bool

func (f invokerFunc) Invoke(mode pipeline.Mode) bool { return f(mode) }

// notifyPresenter shows Display results as a notification when the
// dashboard is disabled
type notifyPresenter struct {
	n *notify.Notifier
}

func (p notifyPresenter) Present(original, result string) {
	p.n.Notify(notify.AppName, result)
}
