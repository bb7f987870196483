package events

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/websocket"

	"flotilla/internal/domain"
)

// clientMessage is what a connected session sends to manage its
// subscriptions.
type clientMessage struct {
	Action  string            `json:"action"`
	Scope   domain.EventScope `json:"scope"`
	ScopeID string            `json:"scopeId"`
}

// Gateway exposes the bus over a JWT-authenticated websocket endpoint.
type Gateway struct {
	bus    *Bus
	secret []byte
}

func NewGateway(bus *Bus, secret []byte) *Gateway {
	return &Gateway{bus: bus, secret: secret}
}

func (g *Gateway) Handler() http.Handler {
	return websocket.Handler(g.serve)
}

func (g *Gateway) serve(ws *websocket.Conn) {
	defer ws.Close()

	userID, err := g.authenticate(ws.Request())
	if err != nil {
		log.Warn("gateway: rejected connection", "error", err)
		return
	}

	session := NewSession(userID)
	defer g.bus.Disconnect(session)

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.readLoop(ws, session)
	}()

	for {
		select {
		case <-done:
			return
		case event := <-session.C:
			if err := websocket.JSON.Send(ws, event); err != nil {
				log.Debug("gateway: send failed, closing session", "user", userID, "error", err)
				return
			}
		}
	}
}

func (g *Gateway) readLoop(ws *websocket.Conn, session *Session) {
	ctx := ws.Request().Context()

	for {
		var message clientMessage
		if err := websocket.JSON.Receive(ws, &message); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("gateway: receive failed", "user", session.UserID, "error", err)
			}
			return
		}

		switch message.Action {
		case "register":
			if err := g.bus.Register(ctx, session, message.Scope, message.ScopeID); err != nil {
				log.Warn("gateway: register refused",
					"user", session.UserID,
					"scope", message.Scope,
					"scopeId", message.ScopeID,
					"error", err)
			}
		case "unregister":
			g.bus.Unregister(session, message.Scope, message.ScopeID)
		default:
			log.Debug("gateway: unknown action", "user", session.UserID, "action", message.Action)
		}
	}
}

// authenticate extracts the user id from the handshake JWT. The token rides
// the "token" query parameter because browsers cannot set websocket headers.
func (g *Gateway) authenticate(r *http.Request) (string, error) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		return "", errors.New("missing token")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return g.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}
