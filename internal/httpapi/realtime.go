package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"upets/platform-service/internal/auth"

	"github.com/igm/sockjs-go/sockjs"
	"go.uber.org/zap"
)

const realtimeCartPrefix = "/realtime/cart"

// cartRealtime serves the cart feed over SockJS for clients that cannot
// keep an event stream open. Browser transports cannot set headers, so the
// token may also travel as access_token.
func (h *Handler) cartRealtime() http.Handler {
	return sockjs.NewHandler(realtimeCartPrefix, sockjs.DefaultOptions, h.serveCartSession)
}

func (h *Handler) serveCartSession(session sockjs.Session) {
	userID, status, reason := h.sessionUser(session.Request())
	if userID == "" {
		_ = session.Close(status, reason)
		return
	}
	updates, cancel := h.carts.Subscribe(userID)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, err := session.Recv(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case c, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(c)
			if err != nil {
				h.log.Warn("encode cart", zap.String("user_id", userID), zap.Error(err))
				return
			}
			if err := session.Send(string(payload)); err != nil {
				return
			}
		}
	}
}

// sessionUser authenticates a SockJS session. Failures carry the close
// status sent to the client.
func (h *Handler) sessionUser(r *http.Request) (string, uint32, string) {
	if h.authDisabled {
		return auth.LocalSubject, 0, ""
	}
	if r == nil {
		return "", 4001, "missing token"
	}
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		token = strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if token == "" {
		return "", 4001, "missing token"
	}
	if h.verifier == nil {
		return "", 4002, "auth not configured"
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		return "", 4002, "invalid token"
	}
	return claims.Subject, 0, ""
}
