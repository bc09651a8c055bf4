package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"scholar/scholar/controllers"
	"scholar/scholar/middlewares"
	httputils "scholar/scholar/utils/http"
	"scholar/scholar/utils/logging"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var errBadBody = errors.New("invalid JSON body")

// generic wrapper to reduce boilerplate
func handleJSON(handler func(r *http.Request) (any, int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, status, err := handler(r)
		if err != nil {
			writeErr(w, r, status, err)
			return
		}
		if res == nil {
			w.WriteHeader(status)
			return
		}
		httputils.WriteJSON(w, status, res)
	}
}

// writeErr hides server-side failures behind a generic message.
func writeErr(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		logging.ErrorLogger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		httputils.WriteError(w, status, http.StatusText(status))
		return
	}
	httputils.WriteError(w, status, err.Error())
}

func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err != nil {
		return errBadBody
	}
	return nil
}

func userID(r *http.Request) (int, error) {
	id, ok := middlewares.UserID(r.Context())
	if !ok {
		return 0, middlewares.ErrInvalidToken
	}
	return id, nil
}

func intParam(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

// statusFor maps controller errors shared by the paper and rag groups.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadBody),
		errors.Is(err, controllers.ErrEmptyQuery),
		errors.Is(err, controllers.ErrNoPDF),
		errors.Is(err, controllers.ErrNotPDF),
		errors.Is(err, controllers.ErrInvalidImportURL),
		errors.Is(err, controllers.ErrBlockedURL),
		errors.Is(err, controllers.ErrNoPapers),
		errors.Is(err, controllers.ErrEmptyQuestion),
		errors.Is(err, controllers.ErrNoText):
		return http.StatusBadRequest
	case errors.Is(err, controllers.ErrPaperNotFound),
		errors.Is(err, controllers.ErrSessionNotFound),
		errors.Is(err, controllers.ErrFileNotStored):
		return http.StatusNotFound
	case errors.Is(err, controllers.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, middlewares.ErrInvalidToken), errors.Is(err, middlewares.ErrRevokedToken):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
