package api

import (
	"net/http"
	"time"

	"storefront-newsletter/internal/ai"
	"storefront-newsletter/internal/campaign"
	"storefront-newsletter/internal/newsletter"
	"storefront-newsletter/internal/storage"
	"storefront-newsletter/internal/unsubscribe"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string
	AdminToken     string
	SubscribeRate  int64 // per minute per client IP; 0 disables
	AssetsDir      string
	PageSize       int
}

// Server holds the collaborators the handlers use.
type Server struct {
	Store      storage.Store
	Presets    *newsletter.Library
	Dispatcher *campaign.Dispatcher
	Links      *unsubscribe.Links
	Copywriter ai.Copywriter
	Brand      newsletter.Brand
	Vars       newsletter.VarOptions
	Language   string
	Options    Options
	Now        func() time.Time
}

func (s *Server) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	origins := s.Options.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	if s.Options.AssetsDir != "" {
		r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.Dir(s.Options.AssetsDir))))
	}

	r.Route("/api/newsletter", func(r chi.Router) {
		r.With(throttle(time.Minute, s.Options.SubscribeRate)).Post("/subscribe", s.handleSubscribe)
		// POST only: link scanners prefetch GETs. Mail clients honoring
		// List-Unsubscribe-Post send the one-click POST here.
		r.Post("/unsubscribe", s.handleUnsubscribe)
	})

	r.Route("/api/admin/newsletter", func(r chi.Router) {
		r.Use(adminAuth(s.Options.AdminToken))

		r.Get("/subscribers", s.handleListSubscribers)
		r.Get("/subscribers/export", s.handleExportSubscribers)
		r.Delete("/subscribers/{id}", s.handleDeleteSubscriber)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)

		r.Get("/presets", s.handleListPresets)
		r.Post("/presets", s.handleSavePreset)
		r.Post("/presets/{slug}/apply", s.handleApplyPreset)

		r.Post("/campaigns/preview", s.handlePreview)
		r.Get("/campaigns/recipients", s.handleRecipients)
		r.Post("/campaigns/send", s.handleSend)
		r.Post("/campaigns/suggest-subjects", s.handleSuggestSubjects)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
