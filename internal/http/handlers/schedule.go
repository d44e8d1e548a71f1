package handlers

import (
	"net/http"
	"time"

	"imageloop/internal/imagegen"
	"imageloop/internal/scheduler"
)

type schedulePatch struct {
	Running         *bool   `json:"running"`
	IntervalMs      *int64  `json:"intervalMs" validate:"omitempty,oneof=30000 60000 120000"`
	SkipIfUnchanged *bool   `json:"skipIfUnchanged"`
	ProviderMode    *string `json:"providerMode" validate:"omitempty,oneof=auto gemini imagen primaryOnly secondaryOnly"`
}

type fireResponse struct {
	ID     string           `json:"id"`
	Result *imagegen.Result `json:"result"`
}

type skippedResponse struct {
	Error   string     `json:"error"`
	Code    string     `json:"code"`
	Status  int        `json:"status"`
	Reason  string     `json:"reason"`
	RetryAt *time.Time `json:"retryAt,omitempty"`
}

func (a *App) ScheduleGet(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Scheduler.Snapshot())
}

// SchedulePatch applies the provided settings. The interval is applied
// before running so a start uses the new period.
func (a *App) SchedulePatch(w http.ResponseWriter, r *http.Request) {
	var patch schedulePatch
	if !a.decode(w, r, &patch) {
		return
	}
	var mode imagegen.ProviderMode
	if patch.ProviderMode != nil {
		parsed, err := imagegen.ParseProviderMode(*patch.ProviderMode)
		if err != nil {
			a.error(w, http.StatusBadRequest, string(imagegen.KindInvalidRequest), err.Error())
			return
		}
		mode = parsed
	}

	if patch.IntervalMs != nil {
		if err := a.Scheduler.SetInterval(time.Duration(*patch.IntervalMs) * time.Millisecond); err != nil {
			a.error(w, http.StatusBadRequest, string(imagegen.KindInvalidRequest), err.Error())
			return
		}
	}
	if patch.SkipIfUnchanged != nil {
		a.Scheduler.SetSkipIfUnchanged(*patch.SkipIfUnchanged)
	}
	if patch.ProviderMode != nil {
		a.Scheduler.SetProviderMode(mode)
	}
	if patch.Running != nil {
		if *patch.Running {
			a.Scheduler.Start()
		} else {
			a.Scheduler.Stop()
		}
	}
	a.json(w, http.StatusOK, a.Scheduler.Snapshot())
}

func (a *App) ScheduleReset(w http.ResponseWriter, r *http.Request) {
	a.Scheduler.Reset()
	a.json(w, http.StatusOK, a.Scheduler.Snapshot())
}

// ScheduleFire triggers an attempt now. Skips answer 409 with the reason.
func (a *App) ScheduleFire(w http.ResponseWriter, r *http.Request) {
	out := a.Scheduler.FireNow(r.Context())
	switch {
	case out.Action.Kind != scheduler.ActionFire:
		resp := skippedResponse{
			Error:  "attempt skipped: " + string(out.Action.Reason),
			Code:   "skipped",
			Status: http.StatusConflict,
			Reason: string(out.Action.Reason),
		}
		if !out.Action.RetryAt.IsZero() {
			retryAt := out.Action.RetryAt
			resp.RetryAt = &retryAt
		}
		a.json(w, http.StatusConflict, resp)
	case out.Err != nil:
		a.classifiedError(w, out.Err)
	default:
		a.json(w, http.StatusOK, fireResponse{ID: out.Delivery.ID, Result: out.Delivery.Result})
	}
}
