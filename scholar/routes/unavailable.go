package routes

import (
	"net/http"

	httputils "scholar/scholar/utils/http"

	"github.com/go-chi/chi/v5"
)

// UnavailableRoutes answers every request with 503. It stands in for a
// route group whose database could not be opened.
func UnavailableRoutes(reason string) chi.Router {
	r := chi.NewRouter()
	r.HandleFunc("/*", func(w http.ResponseWriter, r *http.Request) {
		httputils.WriteError(w, http.StatusServiceUnavailable, reason)
	})
	return r
}
