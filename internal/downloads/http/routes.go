package downloadshttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/spmonitor/dashboard/internal/shared"
)

// MountRoutes registers the dashboard endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/", h.handleIndex)
	r.Get("/downloads", h.handleDashboard)
	r.Get("/downloads/summary.json", h.handleSummaryJSON)
	r.Get("/downloads/loads.json", h.handleLoadsJSON)
	r.Get("/downloads/settings", h.handleSettings)
	r.Post("/downloads/settings", h.handleSaveSettings)
	r.Post("/theme", h.handleToggleTheme)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/downloads/export.csv", h.handleExportCSV)
		gr.Get("/downloads/summary.csv", h.handleAggregationCSV)
		gr.Post("/downloads/reload", h.handleReload)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if scope := shared.ClientScope(r.Context()); scope != "" {
		return "client:" + scope, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
