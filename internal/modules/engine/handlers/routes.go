package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk engine routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/allocation", h.HandleAllocation)
	r.Post("/simulation", h.HandleSimulation)
	r.Post("/risk", h.HandleRisk)
	r.Post("/scenarios", h.HandleScenarios)

	r.Route("/backtest", func(r chi.Router) {
		r.Post("/", h.HandleBacktest)
		r.Post("/compare", h.HandleCompare)
	})
}
