package api

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termdeck/internal/api/middleware"
	"github.com/GriffinCanCode/termdeck/internal/api/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameSize   = 1 << 20
	sendQueueDepth = 1024
)

// checkOrigin accepts non-browser clients, same-host pages and loopback pages.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return middleware.IsLoopbackOrigin(origin)
}

// streamConn is one websocket client. All writes go through send so a
// single goroutine owns the connection's writer.
type streamConn struct {
	ws     *websocket.Conn
	logger *zap.Logger
	h      *Handlers
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

// Stream upgrades the request and relays frames until the client leaves.
func (h *Handlers) Stream(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	sc := &streamConn{
		ws:     ws,
		logger: h.logger.With(zap.String("remote", c.ClientIP())),
		h:      h,
		send:   make(chan []byte, sendQueueDepth),
		done:   make(chan struct{}),
	}
	sc.logger.Debug("Stream connected")

	outputs := h.host.OnSessionOutput(func(sessionID string, data []byte) {
		sc.enqueue(wire.Frame{Type: wire.TypeOutput, SessionID: sessionID, Data: data})
	})
	exits := h.host.OnSessionExit(func(sessionID string, code int) {
		sc.enqueue(wire.Frame{Type: wire.TypeExit, SessionID: sessionID, Code: &code})
	})

	ctx, cancel := context.WithCancel(context.Background())
	go sc.writeLoop()
	sc.readLoop(ctx)

	cancel()
	outputs.Unsubscribe()
	exits.Unsubscribe()
	sc.close()
	sc.logger.Debug("Stream disconnected")
}

func (sc *streamConn) readLoop(ctx context.Context) {
	sc.ws.SetReadLimit(maxFrameSize)
	_ = sc.ws.SetReadDeadline(time.Now().Add(pongWait))
	sc.ws.SetPongHandler(func(string) error {
		return sc.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := sc.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sc.logger.Debug("Stream read failed", zap.Error(err))
			}
			return
		}
		_ = sc.ws.SetReadDeadline(time.Now().Add(pongWait))

		frame, err := wire.Decode(msg)
		if err != nil {
			sc.sendError("", "invalid frame: "+err.Error())
			continue
		}
		sc.h.metrics.RecordWSMessage("in", frame.Type)

		switch frame.Type {
		case wire.TypeWrite:
			if err := sc.h.host.WriteSession(ctx, frame.SessionID, frame.Data); err != nil {
				sc.sendError(frame.SessionID, err.Error())
			}
		case wire.TypeResize:
			if frame.Rows <= 0 || frame.Cols <= 0 || frame.Rows > math.MaxUint16 || frame.Cols > math.MaxUint16 {
				sc.sendError(frame.SessionID, "rows and cols must be positive and at most 65535")
				continue
			}
			if err := sc.h.host.ResizeSession(ctx, frame.SessionID, frame.Rows, frame.Cols); err != nil {
				sc.sendError(frame.SessionID, err.Error())
			}
		case wire.TypePing:
			sc.enqueue(wire.Frame{Type: wire.TypePong})
		default:
			sc.sendError(frame.SessionID, "unknown frame type: "+frame.Type)
		}
	}
}

func (sc *streamConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-sc.send:
			_ = sc.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sc.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				sc.logger.Debug("Stream write failed", zap.Error(err))
				sc.close()
				return
			}
		case <-ticker.C:
			if err := sc.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				sc.close()
				return
			}
		case <-sc.done:
			return
		}
	}
}

// enqueue queues a frame without blocking the caller. A client that falls
// a full queue behind is disconnected; it reattaches and recovers from
// scrollback.
func (sc *streamConn) enqueue(f wire.Frame) {
	msg, err := wire.Encode(f)
	if err != nil {
		sc.logger.Error("Failed to encode frame", zap.String("type", f.Type), zap.Error(err))
		return
	}
	select {
	case <-sc.done:
		return
	default:
	}
	select {
	case sc.send <- msg:
		sc.h.metrics.RecordWSMessage("out", f.Type)
	default:
		sc.logger.Warn("Stream client too slow, disconnecting")
		sc.close()
	}
}

func (sc *streamConn) sendError(sessionID, message string) {
	sc.enqueue(wire.Frame{Type: wire.TypeError, SessionID: sessionID, Message: message})
}

func (sc *streamConn) close() {
	sc.once.Do(func() {
		close(sc.done)
		_ = sc.ws.Close()
	})
}
