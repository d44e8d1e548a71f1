package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"imageloop/internal/gallery"
	"imageloop/internal/imagegen"
	"imageloop/internal/infra"
	"imageloop/internal/media"
	"imageloop/internal/scheduler"
)

// maxBodyBytes bounds JSON bodies; ten base64 reference images fit.
const maxBodyBytes = 48 << 20

// Generator runs one stateless generation attempt.
type Generator interface {
	Attempt(ctx context.Context, req imagegen.GenerateRequest) (*imagegen.Result, error)
}

type App struct {
	Config    *infra.Config
	Logger    zerolog.Logger
	Generator Generator
	Scheduler *scheduler.Controller
	Gallery   *gallery.Gallery

	validate *validator.Validate
}

func NewApp(cfg *infra.Config, logger zerolog.Logger, gen Generator, sched *scheduler.Controller, gal *gallery.Gallery) *App {
	return &App{
		Config:    cfg,
		Logger:    logger,
		Generator: gen,
		Scheduler: sched,
		Gallery:   gal,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

type errorResponse struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	Status            int    `json:"status"`
	RetryDelaySeconds *int   `json:"retryDelaySeconds,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorResponse{Error: message, Code: code, Status: status})
}

// classifiedError renders a generation failure with its mapped status.
func (a *App) classifiedError(w http.ResponseWriter, cerr *imagegen.ClassifiedError) {
	if cerr.RetryDelaySeconds != nil {
		w.Header().Set("Retry-After", fmt.Sprint(*cerr.RetryDelaySeconds))
	}
	a.json(w, cerr.HTTPStatus, errorResponse{
		Error:             cerr.Message,
		Code:              string(cerr.Kind),
		Status:            cerr.HTTPStatus,
		RetryDelaySeconds: cerr.RetryDelaySeconds,
	})
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return false
		}
		a.error(w, http.StatusBadRequest, string(imagegen.KindInvalidRequest), "invalid payload: "+err.Error())
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		a.error(w, http.StatusBadRequest, string(imagegen.KindInvalidRequest), validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

type referenceImage struct {
	MIMEType string `json:"mimeType" validate:"max=100"`
	Data     []byte `json:"data" validate:"required"`
}

// toInlineImages resolves MIME types and rejects non-image payloads.
func toInlineImages(refs []referenceImage) ([]imagegen.InlineImage, error) {
	out := make([]imagegen.InlineImage, 0, len(refs))
	for i, ref := range refs {
		mime := media.ResolveMIME(ref.MIMEType, ref.Data)
		if !media.IsSupported(mime) {
			return nil, fmt.Errorf("referenceImages[%d]: unsupported type %q", i, mime)
		}
		out = append(out, imagegen.InlineImage{MIMEType: mime, Data: ref.Data})
	}
	return out, nil
}
