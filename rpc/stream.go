package rpc

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"tiersale/core/events"
)

const streamWriteTimeout = 10 * time.Second

// EventStream delivers committed ledger events to websocket subscribers.
type EventStream interface {
	Subscribe(since uint64) ([]events.Update, <-chan events.Update, func())
}

// SetStream enables /v1/presale/stream. It must be called before the server
// starts handling requests.
func (s *Server) SetStream(stream EventStream) {
	s.stream = stream
}

// closeStreams ends every open stream. Hijacked connections are not drained
// by http.Server.Shutdown.
func (s *Server) closeStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		writeError(w, http.StatusServiceUnavailable, codeStreamUnavailable, "event stream is disabled")
		return
	}
	var since uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "since must be an unsigned integer")
			return
		}
		since = parsed
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "requestId", RequestIDFromContext(r.Context()))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	if err := s.pump(conn.CloseRead(r.Context()), conn, since); err != nil {
		if websocket.CloseStatus(err) == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) pump(ctx context.Context, conn *websocket.Conn, since uint64) error {
	backlog, updates, cancel := s.stream.Subscribe(since)
	defer cancel()

	for _, update := range backlog {
		if err := writeUpdate(ctx, conn, update); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closing:
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeUpdate(ctx, conn, update); err != nil {
				return err
			}
		}
	}
}

func writeUpdate(ctx context.Context, conn *websocket.Conn, update events.Update) error {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, update)
}
