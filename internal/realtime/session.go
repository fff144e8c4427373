package realtime

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	readLimit  = 4 * 1024
)

// Serve pumps the subscription into conn until the client disconnects, the
// subscription ends or ctx is cancelled.  It owns conn and sub and closes
// both before returning.  Sessions only receive; client frames other than
// control frames are discarded.
func Serve(ctx context.Context, conn *websocket.Conn, sub *Subscription, log *zap.Logger) {
	defer conn.Close()
	defer sub.Close()

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("realtime read ended", zap.Error(err))
				}
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			closeConn(conn, websocket.CloseGoingAway, "server shutting down")
			<-done
			return
		case <-done:
			return
		case msg, ok := <-sub.C:
			if !ok {
				closeConn(conn, websocket.ClosePolicyViolation, "too slow")
				<-done
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug("realtime write failed", zap.Error(err))
				conn.Close()
				<-done
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				<-done
				return
			}
		}
	}
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	// the reader sees the peer's close reply or the deadline and exits
	_ = conn.SetReadDeadline(time.Now().Add(writeWait))
}
