package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk and kill switch routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Get("/var", h.HandleGetVaR)
		r.Get("/var/multi-horizon", h.HandleMultiHorizonVaR)
		r.Get("/monte-carlo", h.HandleMonteCarlo)
		r.Route("/circuit-breaker", func(r chi.Router) {
			r.Post("/trigger", h.HandleTriggerCircuitBreaker)
			r.Post("/reset", h.HandleResetCircuitBreaker)
		})
	})

	r.Route("/killswitch", func(r chi.Router) {
		r.Get("/state", h.HandleKillSwitchState)
		r.Get("/events", h.HandleKillSwitchEvents)
		r.Post("/activate", h.HandleActivateKillSwitch)
		r.Post("/deactivate", h.HandleDeactivateKillSwitch)
	})
}
