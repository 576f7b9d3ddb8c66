package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/25kamalesh/YapOps/internal/server/middleware"
	"github.com/25kamalesh/YapOps/pkg/chat"
	"github.com/25kamalesh/YapOps/pkg/state"
	"github.com/25kamalesh/YapOps/pkg/transport"
)

const maxSendBodyBytes = 64 * 1024

// upgradeHandler accepts a WebSocket connection and walks it through the
// session state machine. The auth middleware has already established the
// user's identity; a request that reaches this handler without one is
// closed without ever touching the registry.
func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	sess := a.lifecycle.Begin()

	var userID string
	if reqMeta != nil {
		userID = reqMeta.UserID
	}
	if err := a.lifecycle.Authenticate(sess, state.UserID(userID)); err != nil {
		a.logger.Warn("Rejecting unauthenticated upgrade", slog.Any("error", err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", userID),
	)

	acceptOpts := &websocket.AcceptOptions{}
	if len(a.config.Server.AllowedOrigins) > 0 {
		acceptOpts.OriginPatterns = a.config.Server.AllowedOrigins
	} else {
		// No allow-list configured: accept any origin (dev setups).
		acceptOpts.InsecureSkipVerify = true
	}

	wsConn, err := websocket.Accept(w, r, acceptOpts)
	if err != nil {
		connLogger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout:  a.config.Transport.ReadTimeout,
			PingInterval: a.config.Transport.PingInterval,
			SendBuffer:   a.config.Transport.SendBuffer,
		},
		nil,
		nil,
		connLogger,
	)
	conn.SetOnMessageHandler(func(ctx context.Context, connID uuid.UUID, msg []byte) {
		a.events.Handle(ctx, sess.UserID(), connID, msg)
	})
	// Wire the close signal before activating so the registry can never
	// hold a connection whose death would go unnoticed.
	conn.SetOnCloseHandler(func(connID uuid.UUID, cause error) {
		a.lifecycle.Close(sess, cause)
	})

	if err := a.lifecycle.Activate(sess, conn); err != nil {
		connLogger.Warn("Activation failed; closing connection", slog.Any("error", err))
		conn.Close(err)
		return
	}

	connLogger.Info("User connection fully established")
	conn.Run()
	<-conn.Done()
}

// historyHandler returns the conversation between the authenticated user
// and the peer in the path, oldest first, capped by config.
func (a *App) historyHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	peer := strings.TrimSpace(r.PathValue("peer"))
	if peer == "" {
		http.Error(w, "missing peer", http.StatusBadRequest)
		return
	}

	msgs, err := a.store.Conversation(r.Context(),
		state.UserID(reqMeta.UserID), state.UserID(peer), a.config.Store.HistoryLimit)
	if err != nil {
		a.logger.Error("History fetch failed", slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"messages":   msgs,
		"peerOnline": a.registry.IsOnline(state.UserID(peer)),
	})
}

type sendRequest struct {
	Body string `json:"body"`
}

// sendHandler persists a message and hands it to the delivery router. The
// HTTP response only reflects the persistence write: routing is
// best-effort and an offline recipient is not an error.
func (a *App) sendHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	peer := strings.TrimSpace(r.PathValue("peer"))
	if peer == "" {
		http.Error(w, "missing peer", http.StatusBadRequest)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxSendBodyBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	var req sendRequest
	if err := json.Unmarshal(raw, &req); err != nil || strings.TrimSpace(req.Body) == "" {
		http.Error(w, "body must be JSON with a non-empty 'body' field", http.StatusBadRequest)
		return
	}

	ev := chat.NewMessageEvent(state.UserID(reqMeta.UserID), state.UserID(peer), req.Body)
	if err := a.store.Append(r.Context(), ev); err != nil {
		a.logger.Error("Message persist failed", slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	a.delivery.Notify(ev)

	a.writeJSON(w, http.StatusCreated, ev)
}

// presenceHandler exposes the online set to other components and clients
// that prefer polling over the socket.
func (a *App) presenceHandler(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"onlineUserIds": a.registry.OnlineUserIDs(),
	})
}

func (a *App) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func (a *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("Failed to write JSON response", slog.Any("error", err))
	}
}
