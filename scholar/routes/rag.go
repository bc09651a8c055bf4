package routes

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"scholar/scholar/controllers"
	"scholar/scholar/middlewares"
	"scholar/scholar/utils/logging"
	"scholar/scholar/utils/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func RAGRoutes(ctrl *controllers.RAGController, tokens *middlewares.TokenManager, origins []string) chi.Router {
	r := chi.NewRouter()
	r.Group(func(gr chi.Router) {
		gr.Use(tokens.RequireAuth)

		gr.Post("/index", handleJSON(func(r *http.Request) (any, int, error) {
			var req types.IndexRequest
			if err := decode(r, &req); err != nil {
				return nil, statusFor(err), err
			}
			results, err := ctrl.Index(r.Context(), req.PaperIDs)
			if err != nil {
				return nil, http.StatusBadRequest, err
			}
			return map[string]any{"results": results}, http.StatusOK, nil
		}))

		gr.Post("/sessions", handleJSON(func(r *http.Request) (any, int, error) {
			id, err := userID(r)
			if err != nil {
				return nil, http.StatusUnauthorized, err
			}
			var req types.CreateSessionRequest
			if err := decode(r, &req); err != nil {
				return nil, statusFor(err), err
			}
			session, err := ctrl.CreateSession(r.Context(), id, req)
			if err != nil {
				return nil, statusFor(err), err
			}
			return session, http.StatusCreated, nil
		}))

		gr.Get("/sessions", handleJSON(func(r *http.Request) (any, int, error) {
			id, err := userID(r)
			if err != nil {
				return nil, http.StatusUnauthorized, err
			}
			sessions, err := ctrl.ListSessions(r.Context(), id)
			if err != nil {
				return nil, statusFor(err), err
			}
			return sessions, http.StatusOK, nil
		}))

		gr.Get("/sessions/{session_id}/messages", handleJSON(func(r *http.Request) (any, int, error) {
			id, err := userID(r)
			if err != nil {
				return nil, http.StatusUnauthorized, err
			}
			sessionID, err := uuid.Parse(chi.URLParam(r, "session_id"))
			if err != nil {
				return nil, http.StatusBadRequest, errors.New("invalid session_id")
			}
			msgs, err := ctrl.Messages(r.Context(), id, sessionID)
			if err != nil {
				return nil, statusFor(err), err
			}
			return msgs, http.StatusOK, nil
		}))

		gr.Delete("/sessions/{session_id}", handleJSON(func(r *http.Request) (any, int, error) {
			id, err := userID(r)
			if err != nil {
				return nil, http.StatusUnauthorized, err
			}
			sessionID, err := uuid.Parse(chi.URLParam(r, "session_id"))
			if err != nil {
				return nil, http.StatusBadRequest, errors.New("invalid session_id")
			}
			if err := ctrl.DeleteSession(r.Context(), id, sessionID); err != nil {
				return nil, statusFor(err), err
			}
			return nil, http.StatusNoContent, nil
		}))

		gr.Post("/chat", handleJSON(func(r *http.Request) (any, int, error) {
			id, err := userID(r)
			if err != nil {
				return nil, http.StatusUnauthorized, err
			}
			var req types.ChatRequest
			if err := decode(r, &req); err != nil {
				return nil, statusFor(err), err
			}
			res, err := ctrl.Chat(r.Context(), id, req)
			if err != nil {
				return nil, statusFor(err), err
			}
			return res, http.StatusOK, nil
		}))
	})

	// Browsers cannot set headers on a websocket handshake, so the token
	// travels in the first frame.
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originHosts(origins)})
		if err != nil {
			logging.ErrorLogger.Error("websocket accept error", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusInternalError, "internal error")
		streamChat(r.Context(), conn, ctrl, tokens)
	})
	return r
}

func streamChat(ctx context.Context, conn *websocket.Conn, ctrl *controllers.RAGController, tokens *middlewares.TokenManager) {
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	var input types.StreamRequest
	err := wsjson.Read(readCtx, conn, &input)
	cancel()
	if err != nil {
		wsjson.Write(ctx, conn, types.StreamFrame{Type: "error", Error: "invalid json"})
		conn.Close(websocket.StatusUnsupportedData, "invalid json")
		return
	}

	claims, err := tokens.Parse(ctx, input.Token, middlewares.TokenAccess)
	if err != nil {
		wsjson.Write(ctx, conn, types.StreamFrame{Type: "error", Error: "invalid token"})
		conn.Close(websocket.StatusPolicyViolation, "invalid token")
		return
	}

	res, err := ctrl.Stream(ctx, claims.UserID, types.ChatRequest{SessionID: input.SessionID, Question: input.Question},
		func(delta string) error {
			return wsjson.Write(ctx, conn, types.StreamFrame{Type: "delta", Content: delta})
		})
	if err != nil {
		msg := err.Error()
		if statusFor(err) >= http.StatusInternalServerError {
			logging.ErrorLogger.Error("chat stream failed", zap.Error(err))
			msg = "stream error"
		}
		wsjson.Write(ctx, conn, types.StreamFrame{Type: "error", Error: msg})
		conn.Close(websocket.StatusInternalError, "stream error")
		return
	}
	wsjson.Write(ctx, conn, types.StreamFrame{Type: "done", Sources: res.Sources})
	conn.Close(websocket.StatusNormalClosure, "")
}

// originHosts turns allowed origins into the host patterns websocket.Accept
// matches against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			hosts = append(hosts, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		}
	}
	return hosts
}
