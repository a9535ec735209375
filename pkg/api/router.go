package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mbianchi/photarc/internal/logger"
)

// NewRouter builds the chi router with the full route surface.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if deps.hub != nil && deps.Supervisor != nil {
		deps.hub.SetSnapshotSource(deps.Supervisor)
	}

	h := &handlers{deps: deps}

	r.Get("/health", h.health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	r.Get("/ws", deps.hub.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Route("/photos", func(r chi.Router) {
			r.Get("/", h.listPhotos)
			r.Route("/{fileID}", func(r chi.Router) {
				r.Get("/", h.getPhoto)
				r.Post("/favorite", h.toggleFavorite)
				r.Get("/file", h.serveOriginal)
				r.Get("/thumbnail", h.serveThumbnail)
				r.Get("/live", h.serveLiveVideo)
			})
		})

		r.Get("/search", h.search)
		r.Get("/directories", h.directories)
		r.Get("/timeline", h.timeline)
		r.Get("/timeline/years", h.years)
		r.Get("/stats", h.stats)
		r.Get("/tags", h.tags)
		r.Get("/duplicates", h.duplicates)
		r.Get("/large-files", h.largeFiles)

		r.Route("/locations", func(r chi.Router) {
			r.Get("/countries", h.countries)
			r.Get("/cities", h.cities)
			r.Get("/map", h.mapPoints)
		})

		r.Route("/persons", func(r chi.Router) {
			r.Get("/", h.listPersons)
			r.Patch("/{personID}", h.renamePerson)
			r.Post("/{personID}/merge", h.mergePersons)
			r.Get("/{personID}/photos", h.personPhotos)
		})
		r.Get("/faces/{faceID}/crop", h.serveFaceCrop)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.listEvents)
			r.Get("/{eventID}", h.getEvent)
			r.Patch("/{eventID}", h.renameEvent)
			r.Get("/{eventID}/photos", h.eventPhotos)
		})

		r.Route("/scan", func(r chi.Router) {
			r.Get("/", h.scanStatus)
			r.Post("/", h.triggerScan)
			r.Delete("/", h.stopScan)
			r.Get("/ws", deps.hub.ServeWS)
		})
		r.Route("/pipeline", func(r chi.Router) {
			r.Get("/", h.pipelineSnapshot)
			r.Get("/flow", h.pipelineFlow)
			r.Get("/failures", h.pipelineFailures)
			r.Get("/ws", deps.hub.ServeWS)
		})
		r.Post("/index/clear", h.clearIndex)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("request completed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
