package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"medius/internal/auth"
	"medius/internal/config"
	"medius/internal/domain"
	"medius/internal/security"
)

type loginRequest struct {
	Passcode string `json:"passcode"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *domain.User `json:"user"`
}

// handleLogin trades the bridge passcode for a bridge token issued to the
// signed-in Medius user.
// @Summary      Bridge login
// @Description  Trade the bridge passcode for a bridge token of the signed-in Medius user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body loginRequest true "Passcode"
// @Success      200  {object}  tokenResponse
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /auth/login [post]
func handleLogin(cfg *config.Config, identity auth.Session, tokens *security.TokenService, passwords *security.PasscodeHasher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if req.Passcode == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "passcode is required"})
			return
		}
		if err := passwords.Verify(req.Passcode, cfg.BridgePasscodeHash); err != nil {
			logger.Warn("bridge login rejected", zap.String("remote", r.RemoteAddr))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid passcode"})
			return
		}

		user, err := identity.CurrentUser(r.Context())
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, domain.ErrSignedOut) || errors.Is(err, domain.ErrUnauthorized) {
				status = http.StatusUnauthorized
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}

		token, err := tokens.CreateForUser(user.ID, user.Username)
		if err != nil {
			logger.Error("issue bridge token", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to issue token"})
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse{
			AccessToken: token,
			TokenType:   "bearer",
			User:        user,
		})
	}
}

// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.User
// @Failure      401  {object}  map[string]string
// @Router       /auth/me [get]
func handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
