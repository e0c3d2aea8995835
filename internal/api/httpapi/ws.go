package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/speedreader/internal/app/notification"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
)

// wsStream adapts a websocket connection to notification.Stream.
// Writes are serialized; gorilla connections allow one concurrent writer.
type wsStream struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsStream) Send(msg *notification.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(msg)
}

func (s *wsStream) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

func (s *wsStream) close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, reason),
		time.Now().Add(wsWriteTimeout))
}

// handleReaderWS streams the reader's snapshot: once on connect, then after
// every playback event, until the client disconnects or the reader is removed.
func (s *Server) handleReaderWS(w http.ResponseWriter, r *http.Request) {
	rd, err := s.readers.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.WSSubscribers.Inc()
	defer s.metrics.WSSubscribers.Dec()

	stream := &wsStream{conn: conn}
	notifier := rd.Notifications()
	subID, err := notifier.SubscribeWithInitialState(stream, rd.Snapshot)
	if err != nil {
		zlog.Debug().Msgf("ws: initial state failed: reader=%s err=%v", rd.ID, err)
		return
	}
	defer notifier.Unsubscribe(subID)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(1024)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		for {
			// Client messages are ignored; reading surfaces close frames.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-rd.Done():
			stream.close("reader removed")
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := stream.ping(); err != nil {
				return
			}
		}
	}
}
