package overlay

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RegisterRoute timeout 单位为秒
func RegisterRoute(route chi.Router, s *Service, timeout int64) {
	if timeout <= 0 {
		timeout = 60
	}
	overlayRoute := route.Group(func(d chi.Router) {
		overlayOptions := cors.New(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"*"},
		})
		d.Use(overlayOptions.Handler)
		d.Use(middleware.Timeout(time.Duration(timeout) * time.Second))
	})
	overlayRoute.Route("/api/v1", func(r chi.Router) {
		r.Get("/overlay", s.FrameHandler)
		r.Post("/seek", s.SeekHandler)

		r.Get("/rules", s.RulesHandler)
		r.Post("/rules", s.AddRuleHandler)
		r.Delete("/rules/{id}", s.DeleteRuleHandler)
		r.Put("/rules/{id}/move", s.MoveRuleHandler)
		r.Put("/rules/{id}/enable", s.EnableRuleHandler)

		r.Get("/sources", s.SourcesHandler)
		r.Post("/sources", s.AddSourceHandler)
		r.Delete("/sources/{id}", s.DeleteSourceHandler)
		r.Put("/sources/{id}/delay", s.DelayHandler)
		r.Put("/sources/{id}/timeline", s.TimelineHandler)
		r.Put("/sources/{id}/show", s.ShowHandler)
		r.With(CacheMiddleware).Get("/sources/{id}/comments", s.CommentsHandler)
	})
}
