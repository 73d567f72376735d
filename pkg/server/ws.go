package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/0xmhha/filewatch/pkg/logger"
	"github.com/0xmhha/filewatch/pkg/notify"
)

const wsReadBufferSize = 1024
const wsWriteBufferSize = 1024

// eventKind is the "event" field of an inbound websocket message.
type eventKind string

const (
	eventPing        eventKind = "ping"
	eventSubscribe   eventKind = "subscribe"
	eventUnsubscribe eventKind = "unsubscribe"
)

type wsRequest struct {
	Event    eventKind `json:"event"`
	Proposal string    `json:"proposal"`
	FileType string    `json:"file_type"`
}

type wsHandlerFunc func(s *Server, ctx context.Context, sess *wsSession, req wsRequest) error

// wsHandlers is the fixed dispatch table for inbound events.
var wsHandlers = map[eventKind]wsHandlerFunc{
	eventPing:        (*Server).wsPing,
	eventSubscribe:   (*Server).wsSubscribe,
	eventUnsubscribe: (*Server).wsUnsubscribe,
}

// wsSession is the state of one websocket connection. It is only touched
// by the connection's read loop.
type wsSession struct {
	sub    *notify.WSSubscriber
	logger logger.Logger

	// paths this connection is subscribed to
	paths map[string]struct{}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, s.config.AllowedOrigins)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			"remote_addr", r.RemoteAddr,
			"error", err)
		return
	}

	id := fmt.Sprintf("ws-%d@%s", s.nextConn.Add(1), hostOnly(r.RemoteAddr))
	sess := &wsSession{
		sub:    notify.NewWSSubscriber(id, conn, s.config.WriteTimeout),
		logger: s.logger.With("conn_id", id),
		paths:  make(map[string]struct{}),
	}

	s.addSession(sess.sub)
	defer func() {
		s.removeSession(id)
		if s.deps.Dispatcher != nil {
			s.deps.Dispatcher.UnsubscribeAll(id)
		}
		_ = sess.sub.Close()
		sess.logger.Info("websocket closed", "subscriptions", len(sess.paths))
	}()

	sess.logger.Info("websocket connected", "remote_addr", r.RemoteAddr)

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if err := s.dispatchWS(ctx, sess, data); err != nil {
			sess.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// dispatchWS routes one inbound message. A returned error means the
// connection can no longer be written to.
func (s *Server) dispatchWS(ctx context.Context, sess *wsSession, data []byte) error {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Event == "" {
		return sess.sub.WriteText("Malformed JSON")
	}

	handler, ok := wsHandlers[req.Event]
	if !ok {
		return sess.sub.WriteText("Unknown event")
	}
	return handler(s, ctx, sess, req)
}

// wsPing answers a heartbeat. It also counts as activity on every path the
// connection is subscribed to, which keeps those watches from idling out.
func (s *Server) wsPing(ctx context.Context, sess *wsSession, _ wsRequest) error {
	for path := range sess.paths {
		if !s.deps.Registry.Touch(ctx, path, sess.sub.ID()) {
			// Retired meanwhile; the client got an unwatched message.
			delete(sess.paths, path)
		}
	}
	return sess.sub.WriteText("pong")
}

func (s *Server) wsSubscribe(ctx context.Context, sess *wsSession, req wsRequest) error {
	path, err := s.deps.Resolver.Resolve(req.Proposal, req.FileType)
	if err != nil {
		return sess.sub.WriteJSON(errorResponse{Error: "Malformed request"})
	}

	if err := s.deps.Registry.Register(ctx, path, sess.sub.ID()); err != nil {
		return sess.sub.WriteJSON(errorResponse{Error: detectError(err).Message})
	}
	if err := s.deps.Dispatcher.Subscribe(path, sess.sub); err != nil {
		return sess.sub.WriteJSON(errorResponse{Error: "Shutting down"})
	}
	sess.paths[path] = struct{}{}

	sess.logger.Info("subscribed", "path", path)

	return sess.sub.WriteJSON(messageResponse{
		Message:  "Subscribed",
		Proposal: req.Proposal,
		FileType: req.FileType,
	})
}

func (s *Server) wsUnsubscribe(_ context.Context, sess *wsSession, req wsRequest) error {
	path, err := s.deps.Resolver.Resolve(req.Proposal, req.FileType)
	if err != nil {
		return sess.sub.WriteJSON(errorResponse{Error: "Malformed request"})
	}

	s.deps.Dispatcher.Unsubscribe(path, sess.sub.ID())
	delete(sess.paths, path)

	return sess.sub.WriteJSON(messageResponse{
		Message:  "Unsubscribed",
		Proposal: req.Proposal,
		FileType: req.FileType,
	})
}
