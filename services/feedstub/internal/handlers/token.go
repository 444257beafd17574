package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/example/feed-platform/internal/platform/api"
	"github.com/example/feed-platform/internal/platform/auth"
	"github.com/example/feed-platform/internal/platform/httpserver"
)

type tokenRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken handles POST /v1/dev/token. It mints a bearer token for any
// user id and is only mounted outside production.
func IssueToken(verifier auth.JWTVerifier, ttl time.Duration) http.HandlerFunc {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req tokenRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, api.CodeInvalidJSON, "invalid JSON", rid, nil)
			return
		}
		req.UserID = strings.TrimSpace(req.UserID)
		if req.UserID == "" {
			api.BadRequest(w, api.CodeMissingUser, "user_id is required", rid, nil)
			return
		}

		tok, err := verifier.Issue(req.UserID, strings.TrimSpace(req.Name), ttl)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusCreated, tokenResponse{Token: tok, ExpiresAt: time.Now().Add(ttl).UTC()})
	}
}
