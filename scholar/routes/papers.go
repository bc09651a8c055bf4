package routes

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"

	"scholar/scholar/controllers"
	"scholar/scholar/middlewares"
	"scholar/scholar/utils/logging"
	"scholar/scholar/utils/types"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func PapersRoutes(ctrl *controllers.PapersController, tokens *middlewares.TokenManager) chi.Router {
	r := chi.NewRouter()
	r.Use(tokens.RequireAuth)

	r.Post("/search", handleJSON(func(r *http.Request) (any, int, error) {
		var req types.SearchRequest
		if err := decode(r, &req); err != nil {
			return nil, statusFor(err), err
		}
		res, err := ctrl.Search(r.Context(), req)
		if err != nil {
			return nil, statusFor(err), err
		}
		return res, http.StatusOK, nil
	}))

	r.Get("/", handleJSON(func(r *http.Request) (any, int, error) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		papers, err := ctrl.List(r.Context(), limit, offset)
		if err != nil {
			return nil, statusFor(err), err
		}
		return papers, http.StatusOK, nil
	}))

	r.Get("/{paper_id}", handleJSON(func(r *http.Request) (any, int, error) {
		id, err := intParam(r, "paper_id")
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		paper, err := ctrl.Get(r.Context(), id)
		if err != nil {
			return nil, statusFor(err), err
		}
		return paper, http.StatusOK, nil
	}))

	r.Post("/import", handleJSON(func(r *http.Request) (any, int, error) {
		var req types.ImportRequest
		if err := decode(r, &req); err != nil {
			return nil, statusFor(err), err
		}
		paper, err := ctrl.Import(r.Context(), req.URL)
		if err != nil {
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				// the page could not be fetched or parsed
				status = http.StatusBadGateway
			}
			return nil, status, err
		}
		return paper, http.StatusCreated, nil
	}))

	r.Post("/upload", handleJSON(func(r *http.Request) (any, int, error) {
		r.Body = http.MaxBytesReader(nil, r.Body, controllers.MaxPaperBytes+(1<<20))
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("multipart field %q is required", "file")
		}
		defer file.Close()
		paper, err := ctrl.Upload(r.Context(), header.Filename, file)
		if err != nil {
			return nil, statusFor(err), err
		}
		return paper, http.StatusCreated, nil
	}))

	r.Post("/{paper_id}/download", handleJSON(func(r *http.Request) (any, int, error) {
		id, err := intParam(r, "paper_id")
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		paper, err := ctrl.Download(r.Context(), id)
		if err != nil {
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				status = http.StatusBadGateway
			}
			return nil, status, err
		}
		return paper, http.StatusOK, nil
	}))

	r.Get("/{paper_id}/file", func(w http.ResponseWriter, r *http.Request) {
		id, err := intParam(r, "paper_id")
		if err != nil {
			writeErr(w, r, http.StatusBadRequest, err)
			return
		}
		rc, contentType, paper, err := ctrl.Open(r.Context(), id)
		if err != nil {
			writeErr(w, r, statusFor(err), err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", fmt.Sprintf("paper-%d%s", paper.ID, path.Ext(paper.StorageKey))))
		if _, err := io.Copy(w, rc); err != nil {
			logging.ErrorLogger.Error("streaming paper file failed", zap.Int("paper_id", id), zap.Error(err))
		}
	})
	return r
}
