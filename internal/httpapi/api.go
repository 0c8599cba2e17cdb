// Package httpapi exposes the scheduling service over JSON HTTP.
package httpapi

import (
	"bytes"
	"context"
	"expvar"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"escala/internal/adapters/roster"
	"escala/internal/core"
)

// Exports is the export worker surface used by the API.
type Exports interface {
	roster.ExportScheduler
	OpenArtifact(ctx context.Context, id string) (roster.ExportArtifact, *bytes.Reader, error)
}

// Deps wires the API to its collaborators. Exports, Slack and Gatherer are
// optional; their routes answer 404 when unset.
type Deps struct {
	Service   *core.Service
	Exports   Exports
	Slack     *roster.SlackNotifier
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
	Session   SessionConfig
	RateLimit RateLimitConfig
}

// API owns the router and the middleware state.
type API struct {
	svc      *core.Service
	exports  Exports
	slack    *roster.SlackNotifier
	log      *zap.Logger
	sessions *sessions
	limiter  *rateLimiter
	router   chi.Router
}

// New builds the API and its routes.
func New(deps Deps) *API {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	a := &API{
		svc:      deps.Service,
		exports:  deps.Exports,
		slack:    deps.Slack,
		log:      log,
		sessions: newSessions(deps.Session),
		limiter:  newRateLimiter(deps.RateLimit),
	}
	a.router = a.routes(deps.Gatherer)
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Close stops background middleware work.
func (a *API) Close() {
	a.limiter.stop()
}

func (a *API) routes(gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Handle("/debug/vars", expvar.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(a.loadSession)

		r.Route("/session", func(r chi.Router) {
			r.Post("/", a.handleIdentify)
			r.Get("/", a.handleSession)
			r.Delete("/", a.handleSignOut)
		})

		r.Get("/catalog", a.handleCatalog)
		r.Get("/standard-times", a.handleStandardTimes)

		r.Route("/services", func(r chi.Router) {
			r.Get("/", a.handleListServices)
			r.With(requireAdmin).Post("/", a.handleCreateService)
			r.Route("/{serviceID}", func(r chi.Router) {
				r.Get("/", a.handleGetService)
				r.Get("/share", a.handleShare)
				r.With(requireVolunteer).Get("/roster.csv", a.handleServiceRoster)
				r.With(requireVolunteer, a.limiter.middleware).Post("/assignments", a.handleRegister)
				r.With(requireVolunteer).Delete("/assignments/{assignmentID}", a.handleUnregister)

				r.Group(func(r chi.Router) {
					r.Use(requireAdmin)
					r.Patch("/", a.handleUpdateService)
					r.With(requireConfirm).Delete("/", a.handleDeleteService)
					r.Put("/open", a.handleSetOpen)
					r.Post("/slots", a.handleAddServiceSlot)
					r.With(requireConfirm).Delete("/slots/{slot}", a.handleRemoveServiceSlot)
					r.Put("/assignments/{assignmentID}", a.handleReassign)
					r.Post("/share/slack", a.handleShareSlack)
				})
			})
		})

		r.Route("/volunteers", func(r chi.Router) {
			r.Route("/{volunteerID}/avatar", func(r chi.Router) {
				r.Use(requireVolunteer)
				r.Get("/", a.handleGetAvatar)
				r.Put("/", a.handleSetAvatar)
				r.Delete("/", a.handleRemoveAvatar)
			})
			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/", a.handleListVolunteers)
				r.Post("/", a.handleCreateVolunteer)
				r.Get("/{volunteerID}", a.handleGetVolunteer)
				r.Patch("/{volunteerID}", a.handleUpdateVolunteer)
				r.With(requireConfirm).Delete("/{volunteerID}", a.handleDeleteVolunteer)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/catalog", a.handleAddGlobalSlot)
			r.Put("/catalog/{slot}", a.handleRenameGlobalSlot)
			r.With(requireConfirm).Delete("/catalog/{slot}", a.handleRemoveGlobalSlot)
			r.Get("/roster.csv", a.handleFullRoster)
			r.Post("/exports", a.handleCreateExport)
			r.Get("/exports/{exportID}", a.handleGetExport)
			r.Get("/exports/{exportID}/download", a.handleDownloadExport)
		})
	})
	return r
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// pathParam returns a decoded URL parameter. chi matches on the raw path
// when one is present, leaving escapes in place.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v
	}
	if dec, err := url.PathUnescape(v); err == nil {
		return dec
	}
	return v
}
