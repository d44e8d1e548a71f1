package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"imageloop/internal/http/handlers"
	"imageloop/internal/middleware"
)

// Options tune the router's middleware.
type Options struct {
	RateLimitPerMinute int
	AllowedOrigins     []string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", app.Health)
		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs)

		r.With(middleware.RateLimit(opts.RateLimitPerMinute, time.Minute)).Post("/generate", app.Generate)

		r.Route("/schedule", func(r chi.Router) {
			r.Get("/", app.ScheduleGet)
			r.Patch("/", app.SchedulePatch)
			r.Post("/reset", app.ScheduleReset)
			r.With(middleware.RateLimit(opts.RateLimitPerMinute, time.Minute)).Post("/fire", app.ScheduleFire)
		})

		r.Get("/context", app.ContextGet)
		r.Put("/context", app.ContextPut)

		r.Route("/previews", func(r chi.Router) {
			r.Get("/", app.PreviewsList)
			r.Get("/archive", app.PreviewsArchive)
			r.Get("/{id}/image", app.PreviewImage)
			r.Delete("/{id}", app.PreviewDelete)
		})
	})

	return r
}
