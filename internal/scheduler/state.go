// Package scheduler decides when a generation attempt may run and drives the
// attempts. Decide and Complete are pure functions over State; Controller
// owns the State and applies their results.
package scheduler

import (
	"math"
	"time"

	"imageloop/internal/imagegen"
)

// Intervals are the supported schedule periods.
var Intervals = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}

// ValidInterval reports whether d is one of Intervals.
func ValidInterval(d time.Duration) bool {
	for _, allowed := range Intervals {
		if d == allowed {
			return true
		}
	}
	return false
}

// Phase is the derived schedule state name.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseScheduled Phase = "scheduled"
	PhaseInFlight  Phase = "inFlight"
	PhaseBackoff   Phase = "backoff"
)

// State is the schedule state. Zero times mean "none".
type State struct {
	Running         bool
	Interval        time.Duration
	NextDueAt       time.Time
	BackoffUntil    time.Time
	InFlight        bool
	SkipIfUnchanged bool
	LastFingerprint string
	LastError       string
	ProviderMode    imagegen.ProviderMode
	// Epoch changes on disable and reset; completions from an older epoch
	// only release InFlight.
	Epoch uint64
}

// Phase derives the state name at now.
func (s State) Phase(now time.Time) Phase {
	switch {
	case s.InFlight:
		return PhaseInFlight
	case s.backoffPending(now):
		return PhaseBackoff
	case s.Running:
		return PhaseScheduled
	default:
		return PhaseIdle
	}
}

func (s State) backoffPending(now time.Time) bool {
	return !s.BackoffUntil.IsZero() && now.Before(s.BackoffUntil)
}

// NextWake is the earliest time a scheduled tick could do something, or zero
// when nothing is pending.
func (s State) NextWake() time.Time {
	if !s.Running {
		return time.Time{}
	}
	return s.NextDueAt
}

// Enable starts the schedule; the first attempt is due one interval from now.
func Enable(s State, now time.Time) State {
	if s.Running {
		return s
	}
	s.Running = true
	s.NextDueAt = now.Add(s.Interval)
	return s
}

// Disable stops the schedule. An attempt in flight is left to finish but its
// completion will not touch the schedule.
func Disable(s State) State {
	if !s.Running {
		return s
	}
	s.Running = false
	s.NextDueAt = time.Time{}
	s.Epoch++
	return s
}

// Reset forgets fingerprint, error and backoff, and restarts the period.
// InFlight is kept so a running attempt still excludes new ones.
func Reset(s State, now time.Time) State {
	s.Epoch++
	s.LastFingerprint = ""
	s.LastError = ""
	s.BackoffUntil = time.Time{}
	if s.Running {
		s.NextDueAt = now.Add(s.Interval)
	}
	return s
}

// SetInterval changes the period and restarts it when running.
func SetInterval(s State, d time.Duration, now time.Time) State {
	s.Interval = d
	if s.Running {
		s.NextDueAt = now.Add(d)
	}
	return s
}

// TickSource distinguishes scheduled ticks from manual fire requests.
type TickSource string

const (
	SourceSchedule TickSource = "schedule"
	SourceManual   TickSource = "manual"
)

// Tick is one evaluation request.
type Tick struct {
	Now    time.Time
	Source TickSource
	// Fingerprint of the current generation context.
	Fingerprint string
	// PrimaryAllowedAt is the spacing tracker's earliest primary attempt.
	PrimaryAllowedAt time.Time
}

// ActionKind is what the driver should do after a tick.
type ActionKind string

const (
	ActionSkip  ActionKind = "skip"
	ActionFire  ActionKind = "fire"
	ActionDefer ActionKind = "defer"
)

// SkipReason explains a skip.
type SkipReason string

const (
	SkipNotRunning SkipReason = "notRunning"
	SkipInFlight   SkipReason = "inFlight"
	SkipBackoff    SkipReason = "backoff"
	SkipSpacing    SkipReason = "spacing"
	SkipUnchanged  SkipReason = "unchanged"
)

// Action is the outcome of Decide.
type Action struct {
	Kind   ActionKind
	Reason SkipReason
	// RetryAt is when the blocking condition lifts (defer, backoff, spacing).
	RetryAt time.Time
	// Epoch and Fingerprint are captured for Fire and must be echoed back in
	// the Completion.
	Epoch       uint64
	Fingerprint string
}

// Decide evaluates a tick. Scheduled ticks honour the period, the
// in-flight flag, backoff, primary spacing and the unchanged check, in that
// order. Manual ticks skip the period and the unchanged check.
func Decide(s State, t Tick) (State, Action) {
	now := t.Now
	if t.Source != SourceManual {
		if !s.Running {
			return s, Action{Kind: ActionSkip, Reason: SkipNotRunning}
		}
		if !s.NextDueAt.IsZero() && now.Before(s.NextDueAt) {
			return s, Action{Kind: ActionDefer, RetryAt: s.NextDueAt}
		}
		s.NextDueAt = now.Add(s.Interval)
	}

	if s.InFlight {
		return s, Action{Kind: ActionSkip, Reason: SkipInFlight}
	}
	if s.backoffPending(now) {
		return s, Action{Kind: ActionSkip, Reason: SkipBackoff, RetryAt: s.BackoffUntil}
	}
	if s.ProviderMode.UsesPrimary() && now.Before(t.PrimaryAllowedAt) {
		if t.Source != SourceManual {
			s.NextDueAt = t.PrimaryAllowedAt
		}
		return s, Action{Kind: ActionSkip, Reason: SkipSpacing, RetryAt: t.PrimaryAllowedAt}
	}
	if t.Source != SourceManual && s.SkipIfUnchanged && s.LastFingerprint != "" && t.Fingerprint == s.LastFingerprint {
		return s, Action{Kind: ActionSkip, Reason: SkipUnchanged}
	}

	s.BackoffUntil = time.Time{}
	s.InFlight = true
	return s, Action{Kind: ActionFire, Epoch: s.Epoch, Fingerprint: t.Fingerprint}
}

// Completion reports how a fired attempt ended.
type Completion struct {
	Now         time.Time
	Epoch       uint64
	Fingerprint string
	// Err is nil on success.
	Err *imagegen.ClassifiedError
}

// Stale reports whether the completion belongs to an earlier epoch.
func (c Completion) Stale(s State) bool {
	return c.Epoch != s.Epoch
}

// Complete applies an attempt's outcome. InFlight is always cleared.
func Complete(s State, c Completion) State {
	s.InFlight = false
	if c.Stale(s) {
		return s
	}

	if c.Err == nil {
		s.LastFingerprint = c.Fingerprint
		s.LastError = ""
		s.BackoffUntil = time.Time{}
		if s.Running {
			s.NextDueAt = c.Now.Add(s.Interval)
		}
		return s
	}

	s.LastError = c.Err.Message
	if c.Err.Kind == imagegen.KindQuotaExceeded {
		s.BackoffUntil = c.Now.Add(c.Err.RetryDelay(imagegen.DefaultRetryDelay))
	}
	return s
}

// Snapshot is the externally visible schedule state.
type Snapshot struct {
	Phase           Phase                 `json:"phase"`
	Running         bool                  `json:"running"`
	IntervalMs      int64                 `json:"intervalMs"`
	NextDueAt       *time.Time            `json:"nextDueAt,omitempty"`
	BackoffUntil    *time.Time            `json:"backoffUntil,omitempty"`
	InFlight        bool                  `json:"inFlight"`
	SkipIfUnchanged bool                  `json:"skipIfUnchanged"`
	ProviderMode    imagegen.ProviderMode `json:"providerMode"`
	LastError       string                `json:"lastError,omitempty"`
	SecondsLeft     *int                  `json:"secondsLeft,omitempty"`
	ResumeAt        *time.Time            `json:"resumeAt,omitempty"`
	Epoch           uint64                `json:"epoch"`
}

// Snapshot renders s at now. SecondsLeft counts down to the backoff deadline
// when one is pending, otherwise to the next due time.
func (s State) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		Phase:           s.Phase(now),
		Running:         s.Running,
		IntervalMs:      s.Interval.Milliseconds(),
		InFlight:        s.InFlight,
		SkipIfUnchanged: s.SkipIfUnchanged,
		ProviderMode:    s.ProviderMode,
		LastError:       s.LastError,
		Epoch:           s.Epoch,
	}
	if !s.NextDueAt.IsZero() {
		next := s.NextDueAt
		snap.NextDueAt = &next
	}
	if s.backoffPending(now) {
		until := s.BackoffUntil
		snap.BackoffUntil = &until
		snap.ResumeAt = &until
		snap.SecondsLeft = secondsUntil(now, until)
	} else if s.Running && !s.NextDueAt.IsZero() {
		snap.SecondsLeft = secondsUntil(now, s.NextDueAt)
	}
	return snap
}

func secondsUntil(now, t time.Time) *int {
	secs := int(math.Ceil(t.Sub(now).Seconds()))
	if secs < 0 {
		secs = 0
	}
	return &secs
}
