package collab

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"coedit/internal/auth"
	"coedit/internal/middleware"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the frontend origins once they are configured
		return true
	},
}

// WebSocketHandler upgrades HTTP connections and enforces the handshake
// precondition: a verifiable identity credential before any event is
// accepted.
type WebSocketHandler struct {
	hub      *Hub
	verifier auth.Verifier
}

func NewWebSocketHandler(hub *Hub, verifier auth.Verifier) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, verifier: verifier}
}

// bearerToken pulls the credential from the query string (browser WebSocket
// clients cannot set headers) or the Authorization header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// HandleConnection verifies the credential, upgrades, and starts the pumps.
// An absent or invalid token closes the socket with an authentication-error
// close frame rather than silently dropping it.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.Connect")
	defer span.End()

	token := bearerToken(r)

	verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	identity, verifyErr := h.verifier.Verify(verifyCtx, token)
	cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	if verifyErr != nil {
		middleware.AddSpanError(ctx, verifyErr)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication-error"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	span.SetAttributes(
		attribute.String("user.id", identity.UserID),
		attribute.String("user.name", identity.DisplayName),
	)

	session := NewSession(h.hub, conn, identity.UserID, identity.DisplayName)
	h.hub.Register(session)

	go session.WritePump()
	go session.ReadPump()

	log.Printf("✓ websocket connection %s established (user: %s)", session.ID, identity.DisplayName)
}
