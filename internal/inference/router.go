package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jwebster45206/arq-village/internal/services"
	"github.com/jwebster45206/arq-village/pkg/textfilter"
)

// DefaultProbeTimeout bounds the local reachability check.
const DefaultProbeTimeout = 3 * time.Second

const previewLength = 80

// Local is the local model server.
type Local interface {
	services.LLMService
	services.ModelLister
}

// Hosted is the hosted provider; one client serves both hosted tiers.
type Hosted interface {
	services.LLMService
	SetAPIKey(key string)
	APIKey() string
}

// Config selects models and budgets for the router.
type Config struct {
	LocalModel   string // preferred local model name
	LocalFamily  string // substring used when the preferred model is missing
	FastModel    string // hosted tier 1 (haiku)
	QualityModel string // hosted tier 2 (sonnet)
	Tiers        map[Tier]TierSettings
	ProbeTimeout time.Duration
}

// AttemptHook observes provider attempts. Hooks run synchronously on the
// calling goroutine and must not block.
type AttemptHook func(ctx context.Context, a Attempt)

// Router walks the provider chain local → haiku → sonnet → fallback.
type Router struct {
	local  Local
	hosted Hosted
	cfg    Config
	logger *slog.Logger

	scripts *textfilter.ScriptFilter

	probes singleflight.Group
	mu     sync.RWMutex
	state  State

	subscribers notifier

	hooksMu  sync.RWMutex
	hooks    []attemptHook
	nextHook int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewRouter creates a router. Either provider may be nil; its tiers are then
// always skipped.
func NewRouter(local Local, hosted Hosted, cfg Config, logger *slog.Logger) *Router {
	defaults := DefaultTierSettings()
	tiers := make(map[Tier]TierSettings, len(defaults))
	for t, s := range defaults {
		if override, ok := cfg.Tiers[t]; ok {
			s = override
		}
		tiers[t] = s
	}
	cfg.Tiers = tiers
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}

	return &Router{
		local:   local,
		hosted:  hosted,
		cfg:     cfg,
		logger:  logger,
		scripts: textfilter.NewScriptFilter(),
		state:   State{Current: CurrentChecking},
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand replaces the source used to pick canned replies.
func (r *Router) WithRand(rng *rand.Rand) *Router {
	r.rngMu.Lock()
	r.rng = rng
	r.rngMu.Unlock()
	return r
}

type attemptHook struct {
	id int
	fn AttemptHook
}

// OnAttempt registers a hook called after every provider attempt and returns
// a func that removes it. Hooks run in registration order.
func (r *Router) OnAttempt(h AttemptHook) func() {
	r.hooksMu.Lock()
	id := r.nextHook
	r.nextHook++
	r.hooks = append(r.hooks, attemptHook{id: id, fn: h})
	r.hooksMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.hooksMu.Lock()
			defer r.hooksMu.Unlock()
			r.hooks = slices.DeleteFunc(r.hooks, func(e attemptHook) bool { return e.id == id })
		})
	}
}

// Subscribe registers fn for state changes and returns its unsubscribe func.
func (r *Router) Subscribe(fn func(State)) func() {
	return r.subscribers.subscribe(fn)
}

// State returns a snapshot of the provider state.
func (r *Router) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Settings returns the budget for tier, falling back to fast.
func (r *Router) Settings(tier Tier) TierSettings {
	if s, ok := r.cfg.Tiers[tier]; ok {
		return s
	}
	return r.cfg.Tiers[TierFast]
}

// Init probes the providers once. Later calls return the cached state;
// concurrent first calls share one probe.
func (r *Router) Init(ctx context.Context) State {
	if s := r.State(); s.Initialized {
		return s
	}
	v, _, _ := r.probes.Do("init", func() (interface{}, error) {
		if s := r.State(); s.Initialized {
			return s, nil
		}
		return r.runProbe(context.WithoutCancel(ctx)), nil
	})
	return v.(State)
}

// Refresh re-probes the providers regardless of prior initialisation.
func (r *Router) Refresh(ctx context.Context) State {
	v, _, _ := r.probes.Do("refresh", func() (interface{}, error) {
		return r.runProbe(context.WithoutCancel(ctx)), nil
	})
	return v.(State)
}

// UpdateCredential swaps the hosted key and recomputes the hosted flag.
func (r *Router) UpdateCredential(ctx context.Context, key string) State {
	if r.hosted == nil {
		return r.State()
	}
	r.hosted.SetAPIKey(strings.TrimSpace(key))
	valid := ValidCredential(key)
	r.logger.Info("Hosted credential updated", "valid", valid)

	if !r.State().Initialized {
		return r.Init(ctx)
	}
	return r.update(func(s *State) {
		s.HostedKeyAvailable = valid
	})
}

func (r *Router) runProbe(ctx context.Context) State {
	r.setChecking()

	model := r.resolveLocalModel(ctx)
	hostedOK := r.hosted != nil && ValidCredential(r.hosted.APIKey())

	s := r.update(func(s *State) {
		s.LocalAvailable = model != ""
		s.LocalModel = model
		s.HostedKeyAvailable = hostedOK
		s.Initialized = true
	})

	r.logger.Info("Inference router initialized",
		"local_available", s.LocalAvailable,
		"local_model", s.LocalModel,
		"hosted_key_available", s.HostedKeyAvailable,
		"current", s.Current)
	return s
}

func (r *Router) resolveLocalModel(ctx context.Context) string {
	if r.local == nil {
		return ""
	}

	pctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	if err := r.local.Ping(pctx); err != nil {
		r.logger.Info("Local model server unreachable", "error", err)
		return ""
	}
	models, err := r.local.ListModels(pctx)
	if err != nil {
		r.logger.Warn("Failed to list local models", "error", err)
		return ""
	}
	model := SelectModel(models, r.cfg.LocalModel, r.cfg.LocalFamily)
	if model == "" {
		r.logger.Warn("Local model server has no models installed")
	}
	return model
}

func (r *Router) setChecking() {
	r.mu.Lock()
	r.state.Current = CurrentChecking
	s := r.state
	r.mu.Unlock()

	r.subscribers.notify(s)
}

// update applies mut, re-derives Current from the flags and notifies
// subscribers.
func (r *Router) update(mut func(*State)) State {
	r.mu.Lock()
	mut(&r.state)
	r.state.Current = deriveCurrent(r.state.LocalAvailable, r.state.HostedKeyAvailable)
	s := r.state
	r.mu.Unlock()

	r.subscribers.notify(s)
	return s
}

type provider struct {
	source Source
	svc    services.LLMService
	model  string
	ready  bool
}

func (r *Router) chain(s State) []provider {
	var chain []provider
	if r.local != nil {
		chain = append(chain, provider{source: SourceLocal, svc: r.local, model: s.LocalModel, ready: s.LocalAvailable})
	} else {
		chain = append(chain, provider{source: SourceLocal})
	}
	hostedReady := r.hosted != nil && s.HostedKeyAvailable
	var hosted services.LLMService
	if r.hosted != nil {
		hosted = r.hosted
	}
	chain = append(chain,
		provider{source: SourceHaiku, svc: hosted, model: r.cfg.FastModel, ready: hostedReady && r.cfg.FastModel != ""},
		provider{source: SourceSonnet, svc: hosted, model: r.cfg.QualityModel, ready: hostedReady && r.cfg.QualityModel != ""},
	)
	return chain
}

// Infer runs the provider chain. It never panics and never returns an error:
// every failure advances to the next provider, and Fallback() is returned when
// the chain is exhausted.
func (r *Router) Infer(ctx context.Context, system, user string, tier Tier) (result Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Inference panicked", "panic", p, "tier", tier)
			result = Fallback()
		}
	}()

	settings := r.Settings(tier)
	s := r.Init(ctx)
	req := services.GenerateRequest{
		System:      system,
		Prompt:      user,
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
	}

	for _, p := range r.chain(s) {
		if !p.ready {
			r.emit(ctx, Attempt{Source: p.source, Tier: tier, Outcome: OutcomeSkipped})
			continue
		}
		if ctx.Err() != nil {
			r.emit(ctx, Attempt{Source: p.source, Tier: tier, Outcome: OutcomeError, Err: ctx.Err()})
			continue
		}

		req.Model = p.model
		start := time.Now()
		text, err := r.call(ctx, p.svc, req, settings.Timeout)
		a := Attempt{Source: p.source, Tier: tier, Model: p.model, Duration: time.Since(start)}

		switch {
		case err != nil:
			a.Outcome, a.Err = OutcomeError, err
			r.emit(ctx, a)
			continue
		case strings.TrimSpace(text) == "":
			a.Outcome = OutcomeEmpty
			r.emit(ctx, a)
			continue
		case p.source == SourceLocal && r.scripts.ContainsForeignScript(text):
			a.Outcome, a.Preview = OutcomeWrongScript, textfilter.Preview(text, previewLength)
			r.emit(ctx, a)
			return r.retryLocal(ctx, p, req, tier, settings)
		}

		text = strings.TrimSpace(text)
		a.Outcome, a.Preview = OutcomeSuccess, textfilter.Preview(text, previewLength)
		r.emit(ctx, a)
		return Result{Response: text, Source: p.source}
	}

	r.emit(ctx, Attempt{Source: SourceFallback, Tier: tier, Outcome: OutcomeExhausted})
	return Fallback()
}

// retryLocal issues the single stricter retry. Whatever happens, the answer
// stays with the local source: either the retry text or a canned reply.
func (r *Router) retryLocal(ctx context.Context, p provider, req services.GenerateRequest, tier Tier, settings TierSettings) Result {
	req.Prompt = req.Prompt + "\n\n" + StrictLanguageInstruction

	start := time.Now()
	text, err := r.call(ctx, p.svc, req, settings.Timeout)
	a := Attempt{Source: p.source, Tier: tier, Model: p.model, Duration: time.Since(start), Err: err}

	text = strings.TrimSpace(text)
	if err == nil && text != "" && !r.scripts.ContainsForeignScript(text) {
		a.Outcome, a.Preview = OutcomeRetrySuccess, textfilter.Preview(text, previewLength)
		r.emit(ctx, a)
		return Result{Response: text, Source: SourceLocal}
	}

	canned := r.canned(tier)
	a.Outcome, a.Preview = OutcomeCanned, canned
	r.emit(ctx, a)
	return Result{Response: canned, Source: SourceLocal}
}

func (r *Router) call(ctx context.Context, svc services.LLMService, req services.GenerateRequest, timeout time.Duration) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("provider panicked: %v", p)
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err = svc.Generate(cctx, req)
	if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("timed out after %s: %w", timeout, err)
	}
	return text, err
}

func (r *Router) canned(tier Tier) string {
	options, ok := cannedReplies[tier]
	if !ok || len(options) == 0 {
		options = cannedReplies[TierFast]
	}
	r.rngMu.Lock()
	i := r.rng.Intn(len(options))
	r.rngMu.Unlock()
	return options[i]
}

func (r *Router) emit(ctx context.Context, a Attempt) {
	attrs := []any{
		"source", a.Source,
		"tier", a.Tier,
		"outcome", a.Outcome,
	}
	if a.Model != "" {
		attrs = append(attrs, "model", a.Model)
	}
	if a.Duration > 0 {
		attrs = append(attrs, "duration_ms", a.Duration.Milliseconds())
	}
	if a.Preview != "" {
		attrs = append(attrs, "preview", a.Preview)
	}

	switch a.Outcome {
	case OutcomeSkipped:
		r.logger.Debug("Inference attempt", attrs...)
	case OutcomeError:
		r.logger.Warn("Inference attempt", append(attrs, "error", a.Err)...)
	case OutcomeExhausted:
		r.logger.Warn("All inference providers failed", attrs...)
	default:
		r.logger.Info("Inference attempt", attrs...)
	}

	r.hooksMu.RLock()
	hooks := slices.Clone(r.hooks)
	r.hooksMu.RUnlock()
	for _, h := range hooks {
		h.fn(ctx, a)
	}
}
