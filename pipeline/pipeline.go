// Package pipeline runs capture → transform → apply invocations.
//
// At most one invocation runs at a time. A trigger that arrives while one is
// in flight is dropped, never queued: two overlapping clipboard transactions
// would restore each other's snapshots.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"markestedt/tokenspark/clock"
	"markestedt/tokenspark/config"
	"markestedt/tokenspark/failure"
	"markestedt/tokenspark/transform"
)

// SuccessMessage is the notification sent after a replacement
const SuccessMessage = "Prompt optimized successfully"

// Selection captures and replaces the focused application's selection
type Selection interface {
	Capture(ctx context.Context) (string, error)
	Apply(ctx context.Context, text string) error
}

// SecretSource reports whether an API key is configured
type SecretSource interface {
	LoadSecret() (string, bool, error)
}

// Settings supplies a configuration snapshot per invocation
type Settings interface {
	Current() *config.Config
}

// Progress is the busy indicator. Calls are fire-and-forget.
type Progress interface {
	Show(message string)
	Update(message string)
	Hide()
}

// Presenter shows a Display-mode result
type Presenter interface {
	Present(original, result string)
}

// Notifier delivers user-facing notifications
type Notifier interface {
	Notify(title, message string)
	NotifyError(kind failure.Kind, message string)
}

// Observer is told about every stage transition. It runs on the
// invocation goroutine and must not block.
type Observer interface {
	StageChanged(t Transition)
}

// Recorder persists finished invocations
type Recorder interface {
	Record(ctx context.Context, inv Invocation) error
}

// Cleaner post-processes transformed text
type Cleaner interface {
	Process(ctx context.Context, text string) (string, error)
}

// ProviderFunc resolves a transform provider by name
type ProviderFunc func(name string) (transform.Provider, error)

// Transition is one stage change of an invocation
type Transition struct {
	Invocation Invocation
	From       Stage
	To         Stage
	At         time.Time
}

// Invocation is the state of one trigger from Preparing to Done or Failed
type Invocation struct {
	ID        string
	Mode      Mode
	Profile   string
	Provider  string
	Model     string
	StartedAt time.Time
	Stage     Stage
	Captured  string
	Result    string
	Failure   *failure.Error
	// FailedIn is the stage that failed, Idle when the invocation succeeded
	FailedIn Stage

	CaptureTime   time.Duration
	TransformTime time.Duration
	ApplyTime     time.Duration
	Total         time.Duration

	timing     config.TimingConfig
	stageStart time.Time
}

// Outcome is "ok" or the failure kind
func (inv Invocation) Outcome() string {
	if inv.Failure != nil {
		return inv.Failure.Kind.String()
	}
	return "ok"
}

// Deps are the orchestrator's collaborators. Selection, Providers, Secrets
// and Settings are required.
type Deps struct {
	Selection Selection
	Providers ProviderFunc
	Secrets   SecretSource
	Settings  Settings
	Clock     clock.Clock
	Progress  Progress
	Presenter Presenter
	Notifier  Notifier
	Recorder  Recorder
	Cleanup   Cleaner
	Metrics   *Metrics
	Observers []Observer
}

// Orchestrator owns the invocation state machine
type Orchestrator struct {
	deps    Deps
	clock   clock.Clock
	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc

	stage atomic.Int32
	last  atomic.Pointer[Invocation]

	mu   sync.Mutex
	done chan struct{}
}

// New creates an orchestrator in the Idle stage
func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Selection == nil:
		return nil, fmt.Errorf("pipeline: selection is required")
	case deps.Providers == nil:
		return nil, fmt.Errorf("pipeline: provider lookup is required")
	case deps.Secrets == nil:
		return nil, fmt.Errorf("pipeline: secret source is required")
	case deps.Settings == nil:
		return nil, fmt.Errorf("pipeline: settings are required")
	}

	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Progress == nil {
		deps.Progress = nopProgress{}
	}
	if deps.Presenter == nil {
		deps.Presenter = nopPresenter{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:    deps,
		clock:   deps.Clock,
		metrics: deps.Metrics,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Stage returns the current stage
func (o *Orchestrator) Stage() Stage {
	return Stage(o.stage.Load())
}

// Last returns the most recently finished invocation
func (o *Orchestrator) Last() (Invocation, bool) {
	inv := o.last.Load()
	if inv == nil {
		return Invocation{}, false
	}
	return *inv, true
}

// Invoke starts an invocation with the active profile. It returns false,
// doing nothing else, when an invocation is already running.
func (o *Orchestrator) Invoke(mode Mode) bool {
	return o.InvokeProfile(mode, "")
}

// InvokeProfile starts an invocation with the referenced profile instead of
// the active one. An empty ref uses the active profile.
func (o *Orchestrator) InvokeProfile(mode Mode, profile string) bool {
	if o.ctx.Err() != nil {
		return false
	}
	if !o.stage.CompareAndSwap(int32(Idle), int32(Preparing)) {
		slog.Debug("Trigger dropped, invocation in progress", "mode", mode, "stage", o.Stage())
		o.metrics.dropped.Inc()
		return false
	}

	now := o.clock.Now()
	inv := &Invocation{
		ID:         uuid.NewString(),
		Mode:       mode,
		Profile:    profile,
		StartedAt:  now,
		Stage:      Preparing,
		stageStart: now,
	}

	done := make(chan struct{})
	o.mu.Lock()
	o.done = done
	o.mu.Unlock()

	go o.run(inv, done)
	return true
}

// Wait blocks until the current invocation, if any, has returned to Idle
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close aborts an in-flight invocation and waits for it to unwind. Its
// clipboard restore still runs.
func (o *Orchestrator) Close() {
	o.cancel()
	o.Wait()
}

func (o *Orchestrator) run(inv *Invocation, done chan struct{}) {
	defer close(done)

	o.metrics.inFlight.Set(1)

	slog.Info("Invocation started", "invocation", inv.ID, "mode", inv.Mode)
	o.observe(inv, Idle)
	o.deps.Progress.Show(Preparing.Label())

	if err := o.execute(o.ctx, inv); err != nil {
		o.fail(inv, err)
	}

	inv.Total = o.clock.Now().Sub(inv.StartedAt)
	o.metrics.finished(inv.Mode, inv.Outcome())
	o.record(inv)

	final := *inv
	o.last.Store(&final)
	o.metrics.inFlight.Set(0)
	o.advance(inv, Idle)
}

func (o *Orchestrator) execute(ctx context.Context, inv *Invocation) error {
	o.advance(inv, Validating)
	req, provider, err := o.validate(inv)
	if err != nil {
		return err
	}

	o.advance(inv, Capturing)
	start := o.clock.Now()
	captured, err := o.deps.Selection.Capture(ctx)
	inv.CaptureTime = o.clock.Now().Sub(start)
	if err != nil {
		return failure.From(err, failure.NoSelection)
	}
	if strings.TrimSpace(captured) == "" {
		return failure.New(failure.NoSelection, "")
	}
	inv.Captured = captured

	o.advance(inv, Transforming)
	req.Input = captured
	start = o.clock.Now()
	result, err := provider.Transform(ctx, req)
	inv.TransformTime = o.clock.Now().Sub(start)
	if err != nil {
		return failure.From(err, failure.Network)
	}
	if o.deps.Cleanup != nil {
		if result, err = o.deps.Cleanup.Process(ctx, result); err != nil {
			return failure.Wrap(failure.InvalidResponse, err)
		}
	}
	if strings.TrimSpace(result) == "" {
		return failure.New(failure.InvalidResponse, "empty result")
	}
	inv.Result = result

	if inv.Mode == Display {
		o.advance(inv, Presenting)
		o.deps.Presenter.Present(inv.Captured, inv.Result)
		o.advance(inv, Done)
		o.deps.Progress.Hide()
		return nil
	}

	o.advance(inv, Applying)
	if err := o.clock.Sleep(ctx, config.Ms(inv.timing.PreApplyMs)); err != nil {
		return failure.Wrap(failure.ApplyFailed, err)
	}
	start = o.clock.Now()
	err = o.deps.Selection.Apply(ctx, result)
	inv.ApplyTime = o.clock.Now().Sub(start)
	if err != nil {
		return failure.From(err, failure.ApplyFailed)
	}

	// The text is already pasted; a cancelled pacing wait is not a failure
	o.deps.Progress.Update(Done.Label())
	if err := o.clock.Sleep(ctx, config.Ms(inv.timing.SuccessDisplayMs)); err != nil {
		slog.Debug("Success display wait interrupted", "invocation", inv.ID, "error", err)
	}
	o.advance(inv, Done)
	o.deps.Progress.Hide()
	o.deps.Notifier.Notify("TokenSpark", SuccessMessage)
	slog.Info("Invocation done", "invocation", inv.ID, "mode", inv.Mode, "duration", o.clock.Now().Sub(inv.StartedAt))
	return nil
}

// validate checks the secret, the profile and the API configuration and
// builds the request
func (o *Orchestrator) validate(inv *Invocation) (transform.Request, transform.Provider, error) {
	cfg := o.deps.Settings.Current()
	inv.timing = cfg.Timing

	key, ok, err := o.deps.Secrets.LoadSecret()
	if err != nil {
		return transform.Request{}, nil, &failure.Error{
			Kind:   failure.ConfigurationError,
			Detail: "API key store is unavailable",
			Err:    err,
		}
	}
	if !ok || strings.TrimSpace(key) == "" {
		return transform.Request{}, nil, failure.New(failure.ConfigurationError, "API key is not configured")
	}

	ref := inv.Profile
	if ref == "" {
		ref = cfg.ActiveProfile
	}
	profile, ok := cfg.Profile(ref)
	if !ok {
		return transform.Request{}, nil, failure.New(failure.ConfigurationError, fmt.Sprintf("profile %q not found", ref))
	}

	if err := cfg.API.Validate(); err != nil {
		return transform.Request{}, nil, failure.Wrap(failure.ConfigurationError, err)
	}

	provider, err := o.deps.Providers(cfg.API.Provider)
	if err != nil {
		return transform.Request{}, nil, failure.Wrap(failure.ConfigurationError, err)
	}

	inv.Profile = profile.Name
	inv.Provider = provider.Name()
	inv.Model = cfg.API.Model

	return transform.Request{
		SystemPrompt: profile.SystemPrompt,
		Model:        cfg.API.Model,
		MaxTokens:    cfg.API.MaxTokens,
		Temperature:  cfg.API.Temperature,
		Timeout:      cfg.API.Timeout(),
		BaseURL:      cfg.API.BaseURL,
	}, provider, nil
}

func (o *Orchestrator) fail(inv *Invocation, err error) {
	fe := failure.From(err, failure.InvalidResponse)
	inv.Failure = fe
	inv.FailedIn = inv.Stage

	o.advance(inv, Failed)
	o.deps.Progress.Hide()
	slog.Error("Invocation failed",
		"invocation", inv.ID,
		"mode", inv.Mode,
		"stage", inv.FailedIn,
		"kind", fe.Kind,
		"error", fe)
	o.deps.Notifier.NotifyError(fe.Kind, fe.Message())
}

func (o *Orchestrator) record(inv *Invocation) {
	if o.deps.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), 5*time.Second)
	defer cancel()
	if err := o.deps.Recorder.Record(ctx, *inv); err != nil {
		slog.Warn("Failed to record invocation", "invocation", inv.ID, "error", err)
	}
}

// advance moves inv to the next stage and publishes the transition
func (o *Orchestrator) advance(inv *Invocation, to Stage) {
	from := inv.Stage
	if !CanTransition(from, to) {
		slog.Error("Illegal stage transition", "invocation", inv.ID, "from", from, "to", to)
	}

	now := o.clock.Now()
	if from != Idle && !from.Terminal() {
		o.metrics.observeStage(from, now.Sub(inv.stageStart))
	}
	inv.stageStart = now
	inv.Stage = to
	o.stage.Store(int32(to))

	switch to {
	case Validating, Capturing, Transforming, Applying:
		o.deps.Progress.Update(to.Label())
	}

	slog.Debug("Stage changed", "invocation", inv.ID, "from", from, "to", to)
	o.observe(inv, from)
}

func (o *Orchestrator) observe(inv *Invocation, from Stage) {
	if len(o.deps.Observers) == 0 {
		return
	}
	t := Transition{Invocation: *inv, From: from, To: inv.Stage, At: inv.stageStart}
	for _, obs := range o.deps.Observers {
		obs.StageChanged(t)
	}
}

type nopProgress struct{}

func (nopProgress) Show(string) {}
func (nopProgress) Update(string) {}
func (nopProgress) Hide() {}

type nopPresenter struct{}

func (nopPresenter) Present(string, string) {}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string) {}
func (nopNotifier) NotifyError(failure.Kind, string) {}
