package routes

import (
	"errors"
	"net/http"

	"scholar/scholar/controllers"
	"scholar/scholar/middlewares"
	httputils "scholar/scholar/utils/http"
	"scholar/scholar/utils/types"

	"github.com/go-chi/chi/v5"
)

// The status codes of this group are the ones the frontend branches on.
func authStatus(err error) int {
	switch {
	case errors.Is(err, errBadBody), errors.Is(err, controllers.ErrMissingFields):
		return http.StatusForbidden
	case errors.Is(err, controllers.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, controllers.ErrUserNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, controllers.ErrWrongPassword):
		return http.StatusPaymentRequired
	case errors.Is(err, controllers.ErrPasswordMismatch), errors.Is(err, controllers.ErrPasswordTooShort):
		return http.StatusBadRequest
	case errors.Is(err, middlewares.ErrInvalidToken), errors.Is(err, middlewares.ErrRevokedToken):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func AuthRoutes(ctrl *controllers.AuthController, tokens *middlewares.TokenManager, limiter *middlewares.RateLimiter) chi.Router {
	r := chi.NewRouter()
	r.Use(limiter.Handler)

	r.Post("/register", handleJSON(func(r *http.Request) (any, int, error) {
		var req types.RegisterRequest
		if err := decode(r, &req); err != nil {
			return nil, authStatus(err), err
		}
		user, err := ctrl.Register(r.Context(), req)
		if err != nil {
			return nil, authStatus(err), err
		}
		return user, http.StatusCreated, nil
	}))

	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		var req types.LoginRequest
		if err := decode(r, &req); err != nil {
			writeErr(w, r, authStatus(err), err)
			return
		}
		res, err := ctrl.Login(r.Context(), req)
		if err != nil {
			writeErr(w, r, authStatus(err), err)
			return
		}
		w.Header().Set("Authorization", "Bearer "+res.AccessToken)
		httputils.WriteJSON(w, http.StatusOK, res)
	})

	r.Post("/refresh", handleJSON(func(r *http.Request) (any, int, error) {
		var req types.RefreshRequest
		if r.ContentLength != 0 {
			if err := decode(r, &req); err != nil {
				return nil, http.StatusBadRequest, err
			}
		}
		if req.RefreshToken == "" {
			req.RefreshToken = middlewares.BearerToken(r)
		}
		access, err := ctrl.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			return nil, authStatus(err), err
		}
		return map[string]string{"access_token": access}, http.StatusOK, nil
	}))

	r.Put("/forgetPassword", handleJSON(func(r *http.Request) (any, int, error) {
		var req types.ForgetPasswordRequest
		if err := decode(r, &req); err != nil {
			return nil, authStatus(err), err
		}
		if err := ctrl.ForgetPassword(r.Context(), req.Email); err != nil {
			return nil, authStatus(err), err
		}
		return map[string]bool{"success": true}, http.StatusOK, nil
	}))

	r.Put("/resetPassword", handleJSON(func(r *http.Request) (any, int, error) {
		var req types.ResetPasswordRequest
		if err := decode(r, &req); err != nil {
			return nil, authStatus(err), err
		}
		if err := ctrl.ResetPassword(r.Context(), req); err != nil {
			return nil, authStatus(err), err
		}
		return map[string]bool{"success": true}, http.StatusCreated, nil
	}))

	r.Group(func(gr chi.Router) {
		gr.Use(tokens.RequireAuth)

		gr.Post("/logout", handleJSON(func(r *http.Request) (any, int, error) {
			if err := ctrl.Logout(r.Context(), middlewares.ClaimsFrom(r.Context())); err != nil {
				return nil, http.StatusInternalServerError, err
			}
			return map[string]bool{"success": true}, http.StatusOK, nil
		}))

		gr.Get("/me", handleJSON(func(r *http.Request) (any, int, error) {
			id, err := userID(r)
			if err != nil {
				return nil, http.StatusUnauthorized, err
			}
			user, err := ctrl.Me(r.Context(), id)
			if err != nil {
				return nil, authStatus(err), err
			}
			return user, http.StatusOK, nil
		}))
	})
	return r
}
