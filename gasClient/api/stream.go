package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStream handles GET /api/v1/stream. The current snapshot is pushed
// on connect, then every committed change. A slow client only ever sees
// the latest snapshot; intermediate ones are coalesced and versions never
// go backwards.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("stream upgrade failed")
		return
	}
	defer conn.Close()

	pending := make(chan telemetry.Snapshot, 1)
	push := func(snap telemetry.Snapshot) {
		for {
			select {
			case pending <- snap:
				return
			default:
			}
			// drop the stale snapshot and retry
			select {
			case <-pending:
			default:
			}
		}
	}

	push(s.engine.Snapshot())
	unsubscribe := s.engine.Subscribe(func(next, _ telemetry.Snapshot) {
		push(next)
	})
	defer unsubscribe()

	done := make(chan struct{})
	go s.readPump(conn, done)

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	var (
		sent     bool
		lastSent uint64
	)
	for {
		select {
		case <-done:
			return
		case snap := <-pending:
			if sent && snap.Version <= lastSent {
				continue
			}
			sent, lastSent = true, snap.Version
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(newSnapshotView(snap)); err != nil {
				s.logger.Debug().Err(err).Msg("stream write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed and
// closes done when the peer goes away.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("stream closed unexpectedly")
			}
			return
		}
	}
}
