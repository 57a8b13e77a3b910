package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"

	"github.com/gorilla/websocket"
)

// TokenVerifier resolves a bearer token to a caller identity.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

type WSHandler struct {
	gateway  *app.Gateway
	verifier TokenVerifier
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler builds the websocket endpoint. verifier may be nil, in which
// case every connection is anonymous.
func NewWSHandler(gateway *app.Gateway, verifier TokenVerifier, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		gateway:  gateway,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "ws"),
	}
}

type inboundMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

// ServeWS upgrades the request and serves gateway requests until the peer
// goes away. Every request gets exactly one "reply" message.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := identify(r, h.verifier)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	c := newClient(conn, sendBuffer, h.logger)
	go c.writePump()
	defer func() {
		h.gateway.Disconnect(c)
		c.close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	caller := app.Caller{Conn: c, Identity: identity}
	h.logger.Debug("client connected", "conn_id", c.ID(), "user_id", identity.UserID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read failed", "conn_id", c.ID(), "error", err)
			}
			return
		}

		var in inboundMessage
		var reply app.Reply
		if err := json.Unmarshal(data, &in); err != nil {
			reply = app.ErrorReply("", domain.Invalid("malformed message"))
		} else if req, err := app.DecodeRequest(in.Type, in.Payload); err != nil {
			reply = app.ErrorReply(app.RequestType(in.Type), err)
		} else {
			reply = h.gateway.Dispatch(r.Context(), caller, req)
		}

		if err := c.enqueue(outboundMessage{Type: "reply", RequestID: in.RequestID, Payload: reply}); err != nil {
			return
		}
	}
}

// identify reads the token from the "token" query parameter or the
// Authorization header. Without a token, or without a verifier, the caller
// is anonymous.
func identify(r *http.Request, verifier TokenVerifier) (domain.Identity, error) {
	if verifier == nil {
		return domain.Identity{}, nil
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		if after, ok := strings.CutPrefix(header, "Bearer "); ok {
			token = strings.TrimSpace(after)
		}
	}
	if token == "" {
		return domain.Identity{}, nil
	}
	return verifier.Verify(token)
}
