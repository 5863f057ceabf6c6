package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrWong99/chatsim/internal/observe"
	"github.com/MrWong99/chatsim/internal/phrase"
	"github.com/MrWong99/chatsim/internal/stream"
)

// streamConfig reads topic, mode and pacing from the query. The original
// web client sends the topic as "game", which is accepted as an alias.
func (s *Server) streamConfig(r *http.Request) (stream.Config, error) {
	q := r.URL.Query()
	topic := strings.TrimSpace(q.Get("topic"))
	if topic == "" {
		topic = strings.TrimSpace(q.Get("game"))
	}
	if topic == "" {
		return stream.Config{}, errors.New("topic is required")
	}
	mode, err := phrase.ParseMode(q.Get("mode"))
	if err != nil {
		return stream.Config{}, err
	}

	defaults := s.StreamDefaults()
	pacing := defaults.Pacing
	if q.Get("min") != "" || q.Get("max") != "" {
		if pacing, err = stream.ParsePacing(q.Get("min"), q.Get("max")); err != nil {
			return stream.Config{}, err
		}
	}
	return stream.Config{
		Topic:     topic,
		Mode:      mode,
		Pacing:    pacing,
		KeepAlive: defaults.KeepAlive,
	}, nil
}

// handleChatStream serves GET /api/chat-stream as Server-Sent Events. The
// stream ends when the client disconnects.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r, errorBody{Error: "unauthenticated"})
	if !ok {
		return
	}
	cfg, err := s.streamConfig(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	tr, err := stream.NewSSETransport(w)
	if err != nil {
		observe.Logger(r.Context()).Error("chat stream unavailable", "err", err)
		return
	}
	s.runSession(r.Context(), userID, cfg, tr)
}

// handleChatWS serves GET /api/chat-ws: the same stream as JSON text frames
// over a WebSocket.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r, errorBody{Error: "unauthenticated"})
	if !ok {
		return
	}
	cfg, err := s.streamConfig(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	tr, ctx, err := stream.AcceptWS(w, r, s.wsOpts)
	if err != nil {
		// Accept has already written the HTTP error.
		observe.Logger(r.Context()).Warn("websocket upgrade failed", "err", err)
		return
	}
	s.runSession(ctx, userID, cfg, tr)
}

func (s *Server) runSession(ctx context.Context, userID string, cfg stream.Config, tr stream.Transport) {
	ctx = WithUserID(ctx, userID)
	sess := stream.NewSession(s.src, cfg, stream.WithMetrics(s.metrics))
	if err := sess.Run(ctx, tr); err != nil {
		observe.Logger(ctx).Info("chat stream closed by transport",
			"topic", cfg.Topic,
			"messages", sess.Emitted(),
			"err", err,
		)
	}
}
