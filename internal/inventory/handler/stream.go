package handler

import (
	"net/http"

	"github.com/farmacia/farmacia-backend/internal/inventory/feed"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/farmacia/farmacia-backend/pkg/httputil"
	"github.com/farmacia/farmacia-backend/pkg/jwt"
	"github.com/farmacia/farmacia-backend/pkg/logger"
)

// StreamHandler serves the live alert feed
type StreamHandler struct {
	hub         *feed.Hub
	verifier    *jwt.Verifier
	requireAuth bool
	logger      *logger.Logger
}

// NewStreamHandler creates a new stream handler. With requireAuth, a valid
// access token must come in the Authorization header or the access_token
// query parameter, since browsers cannot set headers on websocket requests.
func NewStreamHandler(hub *feed.Hub, verifier *jwt.Verifier, requireAuth bool, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		hub:         hub,
		verifier:    verifier,
		requireAuth: requireAuth,
		logger:      log,
	}
}

// Serve upgrades the connection and subscribes it to alert changes
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if h.requireAuth {
		token := jwt.FromBearer(r.Header.Get("Authorization"))
		if token == "" {
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			httputil.Error(w, errors.Unauthorized("missing access token"))
			return
		}

		claims, err := h.verifier.Verify(token)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		h.logger.Debug().Str("user_id", claims.UserID).Msg("alert stream subscriber authenticated")
	}

	h.hub.ServeWs(w, r)
}
