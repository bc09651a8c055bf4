package controllers

import (
	"net/http"

	httputils "scholar/scholar/utils/http"
)

type HealthController struct {
	environment string
}

func NewHealthController(environment string) *HealthController {
	return &HealthController{environment: environment}
}

func (h *HealthController) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputils.WriteJSON(w, http.StatusOK, map[string]string{
		"status":      "healthy",
		"environment": h.environment,
	})
}
