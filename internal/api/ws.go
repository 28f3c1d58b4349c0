package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yairfalse/vahti/types"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBufferSize   = 16
)

// watchSnapshots streams the current snapshot on connect, then every
// published snapshot until the peer disconnects. Slow peers are cut off
// by the write deadline instead of stalling the refresh loop.
func (a *App) watchSnapshots(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "websocket upgrade required"})
		return
	}

	up := websocket.Upgrader{
		// Loopback status API, no browser origin policy to enforce.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := a.broker.Subscribe(wsBufferSize)
	defer a.broker.Unsubscribe(ch)

	if snap := a.broker.Latest(); snap != nil {
		if err := writeSnapshot(conn, *snap); err != nil {
			return
		}
	}

	// Reader loop detects peer close.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSnapshot(conn, snap); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}

		case <-readDone:
			return

		case <-r.Context().Done():
			return
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap types.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(snap)
}
