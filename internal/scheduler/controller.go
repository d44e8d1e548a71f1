package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"imageloop/internal/clock"
	"imageloop/internal/fingerprint"
	"imageloop/internal/imagegen"
	"imageloop/internal/infra"
)

// ErrInvalidInterval is returned by SetInterval for unsupported periods.
var ErrInvalidInterval = errors.New("interval must be 30s, 60s or 120s")

// Attempter performs one generation attempt.
type Attempter interface {
	Attempt(ctx context.Context, req imagegen.GenerateRequest) (*imagegen.Result, error)
}

// Delivery is a successful attempt handed to the sinks.
type Delivery struct {
	ID          string
	Result      *imagegen.Result
	Source      TickSource
	Fingerprint string
	CreatedAt   time.Time
}

// Sink receives every generated image, including late ones from a previous
// epoch.
type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// GenerationContext is the input each attempt is built from.
type GenerationContext struct {
	Prompt          imagegen.PromptContext
	ReferenceImages []imagegen.InlineImage
}

// Options configures a Controller.
type Options struct {
	Interval        time.Duration
	SkipIfUnchanged bool
	ProviderMode    imagegen.ProviderMode
	// AttemptTimeout bounds a single provider attempt; 0 means no bound.
	AttemptTimeout time.Duration
	Clock          clock.Clock
	Spacing        *SpacingTracker
	Sinks          []Sink
	Logger         *infra.Logger
}

// Outcome is the result of a tick that was evaluated by the controller.
type Outcome struct {
	Action   Action
	Delivery *Delivery
	Err      *imagegen.ClassifiedError
}

// Controller owns the schedule state and drives attempts through an
// Attempter. Its mutex is held only while deciding and completing, never
// across a provider call.
type Controller struct {
	attempter Attempter
	clock     clock.Clock
	spacing   *SpacingTracker
	sinks     []Sink
	logger    *infra.Logger
	timeout   time.Duration

	mu     sync.Mutex
	state  State
	genCtx GenerationContext

	changed chan struct{}
	wg      sync.WaitGroup
}

// NewController builds a stopped controller.
func NewController(attempter Attempter, opts Options) (*Controller, error) {
	if attempter == nil {
		return nil, errors.New("scheduler: attempter is required")
	}
	interval := opts.Interval
	if interval == 0 {
		interval = Intervals[1]
	}
	if !ValidInterval(interval) {
		return nil, ErrInvalidInterval
	}
	mode := opts.ProviderMode
	if mode == "" {
		mode = imagegen.ModeAuto
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	spacing := opts.Spacing
	if spacing == nil {
		spacing = NewSpacingTracker(DefaultSpacing())
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}

	return &Controller{
		attempter: attempter,
		clock:     clk,
		spacing:   spacing,
		sinks:     opts.Sinks,
		logger:    logger,
		timeout:   opts.AttemptTimeout,
		state: State{
			Interval:        interval,
			SkipIfUnchanged: opts.SkipIfUnchanged,
			ProviderMode:    mode,
		},
		changed: make(chan struct{}, 1),
	}, nil
}

// Start enables the schedule.
func (c *Controller) Start() {
	c.update(func(s State, now time.Time) State { return Enable(s, now) })
	c.logger.Info().Msg("scheduler: started")
}

// Stop disables the schedule. An attempt already in flight runs to completion.
func (c *Controller) Stop() {
	c.update(func(s State, _ time.Time) State { return Disable(s) })
	c.logger.Info().Msg("scheduler: stopped")
}

// Reset clears fingerprint, error and backoff and restarts the period.
func (c *Controller) Reset() {
	c.update(func(s State, now time.Time) State { return Reset(s, now) })
	c.logger.Info().Msg("scheduler: reset")
}

// SetInterval changes the schedule period.
func (c *Controller) SetInterval(d time.Duration) error {
	if !ValidInterval(d) {
		return ErrInvalidInterval
	}
	c.update(func(s State, now time.Time) State { return SetInterval(s, d, now) })
	return nil
}

// SetSkipIfUnchanged toggles the unchanged-context check.
func (c *Controller) SetSkipIfUnchanged(skip bool) {
	c.update(func(s State, _ time.Time) State {
		s.SkipIfUnchanged = skip
		return s
	})
}

// SetProviderMode selects the providers future attempts may use.
func (c *Controller) SetProviderMode(mode imagegen.ProviderMode) {
	c.update(func(s State, _ time.Time) State {
		s.ProviderMode = mode
		return s
	})
}

// SetContext replaces the generation context and returns the composed prompt.
func (c *Controller) SetContext(gc GenerationContext) string {
	refs := make([]imagegen.InlineImage, len(gc.ReferenceImages))
	copy(refs, gc.ReferenceImages)
	gc.ReferenceImages = refs

	c.mu.Lock()
	c.genCtx = gc
	c.mu.Unlock()
	return imagegen.ComposePrompt(gc.Prompt)
}

// UpdateJournal replaces only the journal text of the generation context.
func (c *Controller) UpdateJournal(journal string) {
	c.mu.Lock()
	c.genCtx.Prompt.Journal = journal
	c.mu.Unlock()
}

// Context returns a copy of the current generation context.
func (c *Controller) Context() GenerationContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	gc := c.genCtx
	gc.ReferenceImages = append([]imagegen.InlineImage(nil), c.genCtx.ReferenceImages...)
	return gc
}

// State returns a copy of the schedule state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot renders the schedule state at the current time.
func (c *Controller) Snapshot() Snapshot {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot(now)
}

// Tick evaluates a scheduled tick and, when it fires, runs the attempt to
// completion before returning.
func (c *Controller) Tick(ctx context.Context) Outcome {
	return c.run(ctx, SourceSchedule)
}

// FireNow runs an attempt immediately, bypassing the period and the
// unchanged check. It still honours in-flight, backoff and spacing, and works
// while the schedule is stopped.
func (c *Controller) FireNow(ctx context.Context) Outcome {
	return c.run(ctx, SourceManual)
}

// Wait blocks until attempts started by Run have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Run drives scheduled ticks until ctx is cancelled. A periodic ticker at the
// schedule interval and a one-shot timer armed at the next wake both trigger
// evaluation; attempts run in their own goroutine so ticks arriving while one
// is in flight are dropped by Decide.
func (c *Controller) Run(ctx context.Context) error {
	interval := c.State().Interval
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	var kick clock.Timer
	stopKick := func() {
		if kick != nil {
			kick.Stop()
			kick = nil
		}
	}
	defer stopKick()

	arm := func() {
		stopKick()
		st := c.State()
		if st.Interval != interval {
			interval = st.Interval
			ticker.Reset(interval)
		}
		wake := st.NextWake()
		if wake.IsZero() {
			return
		}
		kick = c.clock.NewTimer(wake.Sub(c.clock.Now()))
	}

	c.logger.Info().Dur("interval", interval).Msg("scheduler: loop running")
	arm()
	for {
		var kickC <-chan time.Time
		if kick != nil {
			kickC = kick.C()
		}
		select {
		case <-ctx.Done():
			c.wg.Wait()
			return ctx.Err()
		case <-c.changed:
		case <-ticker.C():
			c.evaluateAsync(ctx)
		case <-kickC:
			kick = nil
			c.evaluateAsync(ctx)
		}
		arm()
	}
}

func (c *Controller) evaluateAsync(ctx context.Context) {
	action, req := c.evaluate(SourceSchedule)
	if action.Kind != ActionFire {
		c.logAction(action)
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.execute(ctx, SourceSchedule, action, req)
		c.notify()
	}()
}

func (c *Controller) run(ctx context.Context, source TickSource) Outcome {
	action, req := c.evaluate(source)
	if action.Kind != ActionFire {
		c.logAction(action)
		return Outcome{Action: action}
	}
	out := c.execute(ctx, source, action, req)
	c.notify()
	return out
}

// evaluate runs Decide under the lock and, on Fire, builds the request from
// the context captured at the same instant.
func (c *Controller) evaluate(source TickSource) (Action, imagegen.GenerateRequest) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	gc := c.genCtx
	prompt := imagegen.ComposePrompt(gc.Prompt)
	fp := contextFingerprint(prompt, gc)

	next, action := Decide(c.state, Tick{
		Now:              now,
		Source:           source,
		Fingerprint:      fp,
		PrimaryAllowedAt: c.spacing.EarliestAllowed(imagegen.ProviderPrimary, now),
	})
	c.state = next
	if action.Kind != ActionFire {
		return action, imagegen.GenerateRequest{}
	}
	return action, imagegen.GenerateRequest{
		TextContext:     prompt,
		ReferenceImages: append([]imagegen.InlineImage(nil), gc.ReferenceImages...),
		ProviderMode:    next.ProviderMode,
		AspectHint:      gc.Prompt.AspectHint,
		NegativeHint:    gc.Prompt.NegativeHint,
		RequestID:       uuid.NewString(),
	}
}

func (c *Controller) execute(ctx context.Context, source TickSource, action Action, req imagegen.GenerateRequest) Outcome {
	logger := c.logger.With().
		Str("request_id", req.RequestID).
		Str("source", string(source)).
		Str("mode", string(req.ProviderMode)).
		Logger()
	logger.Info().Msg("scheduler: attempt started")

	res, cerr := c.attempt(ctx, req)
	now := c.clock.Now()

	if res != nil && res.ProviderUsed == imagegen.ProviderPrimary {
		c.spacing.RecordAttempt(imagegen.ProviderPrimary, now)
	}

	c.mu.Lock()
	stale := Completion{Epoch: action.Epoch}.Stale(c.state)
	c.state = Complete(c.state, Completion{
		Now:         now,
		Epoch:       action.Epoch,
		Fingerprint: action.Fingerprint,
		Err:         cerr,
	})
	backoffUntil := c.state.BackoffUntil
	c.mu.Unlock()

	out := Outcome{Action: action, Err: cerr}
	if cerr != nil {
		event := logger.Warn().Str("kind", string(cerr.Kind)).Bool("stale", stale)
		if cerr.Kind == imagegen.KindQuotaExceeded && !stale {
			event = event.Time("backoff_until", backoffUntil)
		}
		event.Msg("scheduler: attempt failed: " + cerr.Message)
		return out
	}

	delivery := &Delivery{
		ID:          req.RequestID,
		Result:      res,
		Source:      source,
		Fingerprint: action.Fingerprint,
		CreatedAt:   now,
	}
	out.Delivery = delivery
	logger.Info().
		Str("provider", string(res.ProviderUsed)).
		Bool("stale", stale).
		Msg("scheduler: attempt succeeded")

	for _, sink := range c.sinks {
		if err := sink.Deliver(ctx, *delivery); err != nil {
			logger.Error().Err(err).Msg("scheduler: deliver result failed")
		}
	}
	return out
}

// attempt calls the attempter, converting panics into unknown failures so the
// in-flight flag is always released.
func (c *Controller) attempt(ctx context.Context, req imagegen.GenerateRequest) (res *imagegen.Result, cerr *imagegen.ClassifiedError) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			cerr = imagegen.Classify(fmt.Errorf("provider panic: %v", r))
		}
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	result, err := c.attempter.Attempt(ctx, req)
	if err != nil {
		return nil, imagegen.Classify(err)
	}
	if result == nil {
		return nil, imagegen.Classify(errors.New("attempt returned no image"))
	}
	return result, nil
}

func (c *Controller) update(fn func(State, time.Time) State) {
	now := c.clock.Now()
	c.mu.Lock()
	c.state = fn(c.state, now)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

func (c *Controller) logAction(a Action) {
	event := c.logger.Debug().Str("action", string(a.Kind))
	if a.Reason != "" {
		event = event.Str("reason", string(a.Reason))
	}
	if !a.RetryAt.IsZero() {
		event = event.Time("retry_at", a.RetryAt)
	}
	event.Msg("scheduler: tick")
}

// contextFingerprint covers everything the attempt sends: the composed prompt,
// the references, and the hints forwarded to providers outside the prompt.
func contextFingerprint(prompt string, gc GenerationContext) string {
	blobs := make([]fingerprint.Blob, len(gc.ReferenceImages))
	for i, img := range gc.ReferenceImages {
		blobs[i] = fingerprint.Blob{MIMEType: img.MIMEType, Data: img.Data}
	}
	return fingerprint.Compute(fingerprint.Inputs{
		Text:   prompt,
		Images: blobs,
		Options: map[string]string{
			"aspect":   imagegen.NormalizeAspect(gc.Prompt.AspectHint),
			"negative": strings.TrimSpace(gc.Prompt.NegativeHint),
		},
	})
}
