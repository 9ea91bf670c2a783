package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the execution routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/execute", h.HandleExecute)
}
