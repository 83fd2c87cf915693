package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"studio/internal/http/handlers"
	"studio/internal/middleware"
)

type RouterOptions struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	// StaticDir is served under /static when set.
	StaticDir string
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/runs/{id}", app.RunStatus)

		r.Get("/history", app.HistoryList)
		r.Delete("/history", app.HistoryClear)
		r.Delete("/history/{id}", app.HistoryDelete)

		r.Get("/prompts", app.PromptsList)
		r.Post("/prompts", app.PromptsRemember)
		r.Delete("/prompts", app.PromptsClear)

		// Routes below call the remote model.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin))

			r.Post("/videos/ingest", app.VideosIngest)
			r.Post("/videos/analyze", app.VideosAnalyze)
			r.Post("/videos/generate", app.VideosGenerate)
			r.Post("/components/extract", app.ComponentsExtract)
			r.Post("/components/recompose", app.ComponentsRecompose)
			r.Post("/images/generate", app.ImagesGenerate)
			r.Post("/images/analyze", app.ImagesAnalyze)
			r.Post("/images/edit", app.ImagesEdit)
			r.Post("/images/magic", app.ImagesMagic)
			r.Post("/images/restore", app.ImagesRestore)
			r.Post("/images/product-shot", app.ImagesProductShot)
			r.Post("/images/travel", app.ImagesTravel)
			r.Post("/images/concept", app.ImagesConcept)
			r.Post("/backgrounds/generate", app.BackgroundsGenerate)
			r.Post("/pose/describe", app.PoseDescribe)
			r.Post("/prompts/suggest", app.PromptsSuggest)
		})
	})

	return r
}
