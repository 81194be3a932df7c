package ws

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"medius/internal/api"
	"medius/internal/chat"
	"medius/internal/security"
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

// inbound is a frame sent by the local UI.
type inbound struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Draft   string `json:"draft"`
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// MakeHandler returns an HTTP handler for the /ws?deal_id= endpoint.
// Authenticates via the bridge bearer token (Authorization header or
// Sec-WebSocket-Protocol), sends a snapshot of the mounted session, then
// streams the deal's bus events. Inbound frames:
//   - send_message   -> optimistic send over the realtime channel
//   - set_draft      -> persist the composer text
//   - dismiss_banner -> hide the connection banner
//   - reconnect      -> manual refresh after the channel gave up
func MakeHandler(
	hub *Hub,
	tokens *security.TokenService,
	sessions *chat.Registry,
	allowedOrigins []string,
	logger *zap.Logger,
) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("ws")
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			var authErr wsAuthError
			if errors.As(err, &authErr) {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		dealID := r.URL.Query().Get("deal_id")
		if dealID == "" {
			http.Error(w, "missing deal_id", http.StatusBadRequest)
			return
		}
		session, ok := sessions.Get(dealID)
		if !ok {
			http.Error(w, "deal session not mounted", http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(conn)
		defer client.Close()

		log := logger.With(zap.String("deal_id", dealID), zap.String("user_id", claims.Subject))
		hub.Register(dealID, client)
		defer hub.Unregister(dealID, client)
		log.Debug("socket open")

		if err := client.WriteJSON(Frame{Type: "snapshot", Data: session.Snapshot()}); err != nil {
			return
		}

		ctx := r.Context()
		for {
			var in inbound
			if err := conn.ReadJSON(&in); err != nil {
				var closeErr *websocket.CloseError
				if !errors.As(err, &closeErr) {
					log.Debug("socket read", zap.Error(err))
				}
				break
			}

			// the session may have been unmounted while the socket was open
			s, ok := sessions.Get(dealID)
			if !ok {
				sendError(client, "deal session not mounted")
				continue
			}

			switch in.Type {
			case "send_message":
				if err := s.SendText(ctx, in.Message); err != nil {
					sendError(client, errorText(err))
				}
			case "set_draft":
				if err := s.SetDraft(ctx, in.Draft); err != nil {
					log.Warn("set draft", zap.Error(err))
					sendError(client, "failed to save draft")
				}
			case "dismiss_banner":
				s.Dismiss()
			case "reconnect":
				sessions.Reconnect(dealID)
			default:
				log.Debug("unknown event type", zap.String("type", in.Type))
			}
		}
	}
}

func errorText(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}

func sendError(c *Client, msg string) {
	_ = c.WriteJSON(Frame{Type: "error", Message: msg})
}
