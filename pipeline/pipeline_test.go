package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markestedt/tokenspark/clipboard"
	"markestedt/tokenspark/clock"
	"markestedt/tokenspark/config"
	"markestedt/tokenspark/failure"
	"markestedt/tokenspark/input"
	"markestedt/tokenspark/platform"
	"markestedt/tokenspark/platform/platformtest"
	"markestedt/tokenspark/postprocess"
	"markestedt/tokenspark/selection"
	"markestedt/tokenspark/transform"
)

const userClipboard = "user clipboard"

type staticSecret struct {
	key string
	ok  bool
	err error
}

func (s staticSecret) LoadSecret() (string, bool, error) {
	return s.key, s.ok, s.err
}

type fakeProvider struct {
	mu      sync.Mutex
	out     string
	err     error
	reqs    []transform.Request
	started chan struct{}
	release chan struct{}
}

func (p *fakeProvider) Name() string {
	return "fake"
}

func (p *fakeProvider) Transform(ctx context.Context, req transform.Request) (string, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	started, release := p.started, p.release
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", failure.Wrap(failure.Timeout, ctx.Err())
		}
	}
	return p.out, p.err
}

func (p *fakeProvider) requests() []transform.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]transform.Request(nil), p.reqs...)
}

type progressLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *progressLog) Show(m string) { l.add("show " + m) }
func (l *progressLog) Update(m string) { l.add("update " + m) }
func (l *progressLog) Hide() { l.add("hide") }

func (l *progressLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *progressLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type notifiedError struct {
	Kind    failure.Kind
	Message string
}

type notifierLog struct {
	mu     sync.Mutex
	notes  []string
	errors []notifiedError
}

func (n *notifierLog) Notify(title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, message)
}

func (n *notifierLog) NotifyError(kind failure.Kind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, notifiedError{Kind: kind, Message: message})
}

func (n *notifierLog) snapshot() ([]string, []notifiedError) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notes...), append([]notifiedError(nil), n.errors...)
}

type presenterLog struct {
	mu    sync.Mutex
	calls [][2]string
}

func (p *presenterLog) Present(original, result string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, [2]string{original, result})
}

type stageLog struct {
	mu          sync.Mutex
	transitions []Transition
}

func (l *stageLog) StageChanged(t Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, t)
}

func (l *stageLog) all() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transition(nil), l.transitions...)
}

func (l *stageLog) stages() []Stage {
	var out []Stage
	for _, t := range l.all() {
		out = append(out, t.To)
	}
	return out
}

type recordLog struct {
	mu   sync.Mutex
	invs []Invocation
}

func (r *recordLog) Record(ctx context.Context, inv Invocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invs = append(r.invs, inv)
	return nil
}

func (r *recordLog) all() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invocation(nil), r.invs...)
}

// pasteKeys fails only the paste chord
type pasteKeys struct {
	*platformtest.Keys
	downErr error
	upErr   error
}

func (k pasteKeys) KeyDown(c platform.Chord) error {
	if c.Key == "v" && k.downErr != nil {
		return k.downErr
	}
	return k.Keys.KeyDown(c)
}

func (k pasteKeys) KeyUp(c platform.Chord) error {
	if c.Key == "v" && k.upErr != nil {
		return k.upErr
	}
	return k.Keys.KeyUp(c)
}

type rig struct {
	cb        *platformtest.Clipboard
	keys      *platformtest.Keys
	keySender platform.KeySender
	app       *platformtest.Application
	clock     *clock.Fake
	cfg       *config.Config
	secret    staticSecret
	provider  *fakeProvider
	cleanup   Cleaner
	progress  *progressLog
	notifier  *notifierLog
	presenter *presenterLog
	stages    *stageLog
	records   *recordLog
	metrics   *Metrics
}

func newRig(selected string) *rig {
	cb := platformtest.NewClipboard(userClipboard)
	keys := &platformtest.Keys{}
	return &rig{
		cb:        cb,
		keys:      keys,
		app:       platformtest.NewApplication(selected, cb, keys),
		clock:     clock.NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)),
		cfg:       config.Default(),
		secret:    staticSecret{key: "sk-test", ok: true},
		provider:  &fakeProvider{out: "transformed"},
		progress:  &progressLog{},
		notifier:  &notifierLog{},
		presenter: &presenterLog{},
		stages:    &stageLog{},
		records:   &recordLog{},
		metrics:   NewMetrics(prometheus.NewRegistry()),
	}
}

func (r *rig) start(t *testing.T) *Orchestrator {
	t.Helper()

	var keys platform.KeySender = r.keys
	if r.keySender != nil {
		keys = r.keySender
	}
	proto := selection.New(clipboard.NewManager(r.cb), input.NewInjector(keys, r.clock, 0), r.clock, selection.Options{
		Timing:     selection.DefaultTiming(),
		CopyChord:  platform.Chord{Ctrl: true, Key: "c"},
		PasteChord: platform.Chord{Ctrl: true, Key: "v"},
	})

	o, err := New(Deps{
		Selection: proto,
		Providers: func(name string) (transform.Provider, error) {
			if name != "openai" {
				return nil, fmt.Errorf("unknown provider: %s", name)
			}
			return r.provider, nil
		},
		Secrets:   r.secret,
		Settings:  config.NewStore(r.cfg),
		Clock:     r.clock,
		Progress:  r.progress,
		Presenter: r.presenter,
		Notifier:  r.notifier,
		Recorder:  r.records,
		Cleanup:   r.cleanup,
		Metrics:   r.metrics,
		Observers: []Observer{r.stages},
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

func (r *rig) invoke(t *testing.T, o *Orchestrator, mode Mode) {
	t.Helper()
	require.True(t, o.Invoke(mode))
	o.Wait()
	assert.Equal(t, Idle, o.Stage())
}

func assertLegalTransitions(t *testing.T, ts []Transition) {
	t.Helper()
	for _, tr := range ts {
		assert.True(t, CanTransition(tr.From, tr.To), "illegal transition %s -> %s", tr.From, tr.To)
	}
}

func TestReplaceScenario(t *testing.T) {
	r := newRig("fix this sentence")
	r.provider.out = "Fixed sentence."
	o := r.start(t)

	r.invoke(t, o, Replace)

	assert.Equal(t, []string{"Fixed sentence."}, r.app.PastedTexts())
	assert.Equal(t, userClipboard, r.cb.Text(), "original clipboard restored")

	reqs := r.provider.requests()
	require.Len(t, reqs, 1)
	active, _ := r.cfg.Active()
	assert.Equal(t, "fix this sentence", reqs[0].Input)
	assert.Equal(t, active.SystemPrompt, reqs[0].SystemPrompt)
	assert.Equal(t, "gpt-4o-mini", reqs[0].Model)
	assert.Equal(t, 500, reqs[0].MaxTokens)
	assert.Equal(t, 10*time.Second, reqs[0].Timeout)

	assert.Equal(t,
		[]Stage{Preparing, Validating, Capturing, Transforming, Applying, Done, Idle},
		r.stages.stages())
	assertLegalTransitions(t, r.stages.all())

	assert.Equal(t, []string{
		"show Preparing...",
		"update Validating configuration...",
		"update Capturing text...",
		"update Transforming...",
		"update Replacing...",
		"update Done!",
		"hide",
	}, r.progress.all())

	notes, errs := r.notifier.snapshot()
	assert.Equal(t, []string{SuccessMessage}, notes)
	assert.Empty(t, errs)

	// copy chord, copy settle, pre-apply, write settle, paste chord, paste settle, success indicator
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond, 100 * time.Millisecond,
		200 * time.Millisecond,
		50 * time.Millisecond, 10 * time.Millisecond, 100 * time.Millisecond,
		800 * time.Millisecond,
	}, r.clock.Sleeps())

	recs := r.records.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "ok", recs[0].Outcome())
	assert.Equal(t, "Prompt optimizer", recs[0].Profile)
	assert.Equal(t, "fake", recs[0].Provider)
	assert.Equal(t, "Fixed sentence.", recs[0].Result)
	assert.Equal(t, 1270*time.Millisecond, recs[0].Total)

	last, ok := o.Last()
	require.True(t, ok)
	assert.Equal(t, Done, last.Stage)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.invocations.WithLabelValues("replace", "ok")))
}

func TestDisplayScenario(t *testing.T) {
	r := newRig("long text")
	r.provider.out = "summary"
	o := r.start(t)

	r.invoke(t, o, Display)

	assert.Equal(t, [][2]string{{"long text", "summary"}}, r.presenter.calls)
	assert.Empty(t, r.app.PastedTexts())
	assert.Equal(t, userClipboard, r.cb.Text())
	assert.Equal(t, []string{"", userClipboard}, r.cb.Writes(), "only the capture's clear and restore")

	assert.Equal(t,
		[]Stage{Preparing, Validating, Capturing, Transforming, Presenting, Done, Idle},
		r.stages.stages())

	notes, errs := r.notifier.snapshot()
	assert.Empty(t, notes, "the result window is the success signal")
	assert.Empty(t, errs)
	assert.Equal(t, "hide", r.progress.all()[len(r.progress.all())-1])
}

func TestSecretAbsent(t *testing.T) {
	r := newRig("fix this sentence")
	r.secret = staticSecret{}
	o := r.start(t)

	r.invoke(t, o, Replace)

	_, errs := r.notifier.snapshot()
	require.Len(t, errs, 1)
	assert.Equal(t, failure.ConfigurationError, errs[0].Kind)
	assert.Equal(t, "Configuration error", errs[0].Kind.Title())

	assert.Empty(t, r.cb.Writes(), "clipboard untouched")
	assert.Empty(t, r.keys.Events())
	assert.Empty(t, r.provider.requests())

	last, _ := o.Last()
	assert.Equal(t, Failed, last.Stage)
	assert.Equal(t, Validating, last.FailedIn)
}

func TestRateLimitedThenRetriggered(t *testing.T) {
	r := newRig("fix this sentence")
	r.provider.err = failure.New(failure.RateLimited, "HTTP 429")
	o := r.start(t)

	r.invoke(t, o, Replace)

	_, errs := r.notifier.snapshot()
	require.Len(t, errs, 1)
	assert.Equal(t, failure.RateLimited, errs[0].Kind)
	assert.Contains(t, errs[0].Message, "rate limit")
	assert.Equal(t, userClipboard, r.cb.Text())

	r.provider.mu.Lock()
	r.provider.err = nil
	r.provider.out = "Fixed sentence."
	r.provider.mu.Unlock()

	r.invoke(t, o, Replace)
	assert.Equal(t, []string{"Fixed sentence."}, r.app.PastedTexts())
	assert.Len(t, r.records.all(), 2)
}

func TestSingleFlight(t *testing.T) {
	r := newRig("fix this sentence")
	r.provider.out = "Fixed sentence."
	r.provider.started = make(chan struct{}, 1)
	r.provider.release = make(chan struct{})
	o := r.start(t)

	require.True(t, o.Invoke(Replace))
	<-r.provider.started
	assert.Equal(t, Transforming, o.Stage())

	assert.False(t, o.Invoke(Replace))
	assert.False(t, o.Invoke(Display))

	close(r.provider.release)
	o.Wait()

	assert.Len(t, r.provider.requests(), 1)
	assert.Len(t, r.records.all(), 1, "exactly one terminal outcome")
	notes, errs := r.notifier.snapshot()
	assert.Len(t, notes, 1)
	assert.Empty(t, errs)
	assert.Empty(t, r.presenter.calls, "the dropped Display trigger had no effect")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.metrics.dropped))
}

func TestInvokeProfileOverride(t *testing.T) {
	r := newRig("long text")
	o := r.start(t)

	require.True(t, o.InvokeProfile(Display, "Summarize"))
	o.Wait()

	summarize, ok := r.cfg.Profile("summarize")
	require.True(t, ok)
	reqs := r.provider.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, summarize.SystemPrompt, reqs[0].SystemPrompt)

	last, _ := o.Last()
	assert.Equal(t, "Summarize", last.Profile)
}

func TestFailureNonCorruption(t *testing.T) {
	plain := errors.New("boom")
	transformErr := func(err error) func(r *rig) {
		return func(r *rig) { r.provider.err = err }
	}
	emptyAfterCleanup := func(r *rig) {
		r.provider.out = "```\n\n```"
		r.cleanup = postprocess.New(postprocess.Options{StripFences: true})
	}

	tests := []struct {
		name     string
		setup    func(r *rig)
		want     failure.Kind
		failedIn Stage
	}{
		{
			name:     "secret store unavailable",
			setup:    func(r *rig) { r.secret = staticSecret{err: errors.New("locked")} },
			want:     failure.ConfigurationError,
			failedIn: Validating,
		},
		{
			name:     "unknown profile",
			setup:    func(r *rig) { r.cfg.ActiveProfile = "gone" },
			want:     failure.ConfigurationError,
			failedIn: Validating,
		},
		{
			name:     "empty model",
			setup:    func(r *rig) { r.cfg.API.Model = "" },
			want:     failure.ConfigurationError,
			failedIn: Validating,
		},
		{
			name:     "zero token budget",
			setup:    func(r *rig) { r.cfg.API.MaxTokens = 0 },
			want:     failure.ConfigurationError,
			failedIn: Validating,
		},
		{
			name:     "unknown provider",
			setup:    func(r *rig) { r.cfg.API.Provider = "nope" },
			want:     failure.ConfigurationError,
			failedIn: Validating,
		},
		{
			name:     "nothing selected",
			setup:    func(r *rig) { r.app.Selection = "" },
			want:     failure.NoSelection,
			failedIn: Capturing,
		},
		{
			name:     "whitespace selection",
			setup:    func(r *rig) { r.app.Selection = "  \n\t" },
			want:     failure.NoSelection,
			failedIn: Capturing,
		},
		{
			name:     "copy denied",
			setup:    func(r *rig) { r.keys.DownErr = platform.ErrInjectionDenied },
			want:     failure.InjectionDenied,
			failedIn: Capturing,
		},
		{
			name:     "transform timeout",
			setup:    transformErr(failure.New(failure.Timeout, "")),
			want:     failure.Timeout,
			failedIn: Transforming,
		},
		{
			name:     "transform rate limited",
			setup:    transformErr(failure.New(failure.RateLimited, "")),
			want:     failure.RateLimited,
			failedIn: Transforming,
		},
		{
			name:     "transform invalid response",
			setup:    transformErr(failure.New(failure.InvalidResponse, "")),
			want:     failure.InvalidResponse,
			failedIn: Transforming,
		},
		{
			name:     "transform network",
			setup:    transformErr(failure.New(failure.Network, "HTTP 502 Bad Gateway")),
			want:     failure.Network,
			failedIn: Transforming,
		},
		{
			name:     "transform credential missing",
			setup:    transformErr(failure.New(failure.CredentialMissing, "")),
			want:     failure.CredentialMissing,
			failedIn: Transforming,
		},
		{
			name:     "transform unclassified error",
			setup:    transformErr(plain),
			want:     failure.Network,
			failedIn: Transforming,
		},
		{
			name:     "result empty after cleanup",
			setup:    emptyAfterCleanup,
			want:     failure.InvalidResponse,
			failedIn: Transforming,
		},
		{
			name:     "paste denied",
			setup:    func(r *rig) { r.keySender = pasteKeys{Keys: r.keys, downErr: platform.ErrInjectionDenied} },
			want:     failure.InjectionDenied,
			failedIn: Applying,
		},
		{
			name:     "paste key-up fails",
			setup:    func(r *rig) { r.keySender = pasteKeys{Keys: r.keys, upErr: plain} },
			want:     failure.ApplyFailed,
			failedIn: Applying,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig("fix this sentence")
			tt.setup(r)
			o := r.start(t)

			r.invoke(t, o, Replace)

			assert.Equal(t, userClipboard, r.cb.Text(), "clipboard equals its pre-invocation content")

			notes, errs := r.notifier.snapshot()
			assert.Empty(t, notes)
			require.Len(t, errs, 1, "reported exactly once")
			assert.Equal(t, tt.want, errs[0].Kind)
			assert.NotEmpty(t, errs[0].Message)

			calls := r.progress.all()
			assert.Equal(t, "hide", calls[len(calls)-1])

			last, ok := o.Last()
			require.True(t, ok)
			assert.Equal(t, Failed, last.Stage)
			assert.Equal(t, tt.failedIn, last.FailedIn)
			assert.Equal(t, tt.want.String(), last.Outcome())

			ts := r.stages.all()
			assertLegalTransitions(t, ts)
			require.GreaterOrEqual(t, len(ts), 2)
			assert.Equal(t, Failed, ts[len(ts)-2].To)
			assert.Equal(t, Idle, ts[len(ts)-1].To)

			assert.True(t, o.Invoke(Display), "a subsequent trigger is accepted")
			o.Wait()
		})
	}
}

func TestCloseAbortsInFlight(t *testing.T) {
	r := newRig("fix this sentence")
	r.provider.started = make(chan struct{}, 1)
	r.provider.release = make(chan struct{})
	o := r.start(t)

	require.True(t, o.Invoke(Replace))
	<-r.provider.started
	o.Close()

	assert.Equal(t, Idle, o.Stage())
	assert.Equal(t, userClipboard, r.cb.Text())
	last, _ := o.Last()
	assert.Equal(t, failure.Timeout, last.Failure.Kind)
	assert.False(t, o.Invoke(Replace), "closed orchestrator accepts no triggers")
}

func TestCancelDuringSuccessDisplayStillDone(t *testing.T) {
	r := newRig("fix this sentence")
	r.provider.out = "Fixed sentence."
	o := r.start(t)
	successWait := config.Ms(r.cfg.Timing.SuccessDisplayMs)
	r.clock.OnSleep = func(d time.Duration) {
		if d == successWait {
			o.cancel()
		}
	}

	require.True(t, o.Invoke(Replace))
	o.Wait()

	assert.Equal(t, []string{"Fixed sentence."}, r.app.PastedTexts())
	assert.Equal(t, userClipboard, r.cb.Text())
	last, ok := o.Last()
	require.True(t, ok)
	assert.Equal(t, Done, last.Stage)
	assert.Nil(t, last.Failure)

	notes, errs := r.notifier.snapshot()
	assert.Equal(t, []string{SuccessMessage}, notes)
	assert.Empty(t, errs)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]Stage]bool{
		{Idle, Preparing}:          true,
		{Preparing, Validating}:    true,
		{Validating, Capturing}:    true,
		{Capturing, Transforming}:  true,
		{Transforming, Applying}:   true,
		{Transforming, Presenting}: true,
		{Applying, Done}:           true,
		{Presenting, Done}:         true,
		{Done, Idle}:               true,
		{Failed, Idle}:             true,
		{Preparing, Failed}:        true,
		{Validating, Failed}:       true,
		{Capturing, Failed}:        true,
		{Transforming, Failed}:     true,
		{Applying, Failed}:         true,
		{Presenting, Failed}:       true,
	}

	for _, from := range Stages() {
		for _, to := range Stages() {
			assert.Equal(t, allowed[[2]Stage{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Display")
	require.NoError(t, err)
	assert.Equal(t, Display, m)

	m, err = ParseMode("replace")
	require.NoError(t, err)
	assert.Equal(t, Replace, m)

	_, err = ParseMode("overlay")
	assert.Error(t, err)
}
