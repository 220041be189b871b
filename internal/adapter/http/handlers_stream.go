package adapthttp

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// streamMessage is one frame sent to a stream client.
type streamMessage struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	u := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(s.corsOrigins) > 0 {
		u.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(s.corsOrigins, origin)
		}
	}
	return u
}

// handleStream pushes the caller's entries and moving average whenever a
// mutation for that user completes. The current state is sent first.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}
	defer conn.Close()

	// Refresh before subscribing so the first value each channel delivers is
	// no older than this connection.
	if _, err := s.tracker.WeightsForUser(r.Context(), user.ID); err != nil {
		log.Warn().Err(err).Int64("user_id", user.ID).Msg("stream snapshot failed")
		return
	}
	entries := s.tracker.Entries(user.ID).Subscribe()
	defer entries.Close()
	averages := s.tracker.Averages(user.ID).Subscribe()
	defer averages.Close()

	s.metrics.Subscribers.WithLabelValues("entries").Inc()
	s.metrics.Subscribers.WithLabelValues("averages").Inc()
	defer s.metrics.Subscribers.WithLabelValues("entries").Dec()
	defer s.metrics.Subscribers.WithLabelValues("averages").Dec()

	log.Info().Int64("user_id", user.ID).Msg("stream client connected")
	defer log.Info().Int64("user_id", user.ID).Msg("stream client disconnected")

	// Drain client frames so control messages are handled; any read error
	// means the peer is gone.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var msg streamMessage
		select {
		case <-closed:
			return
		case v, ok := <-entries.C:
			if !ok {
				return
			}
			msg = streamMessage{Channel: "entries", Data: v}
		case v, ok := <-averages.C:
			if !ok {
				return
			}
			msg = streamMessage{Channel: "averages", Data: v}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}
		if !send(conn, msg) {
			return
		}
	}
}

func send(conn *websocket.Conn, msg streamMessage) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		log.Debug().Err(err).Msg("stream write failed")
		return false
	}
	return true
}
