package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termdeck/internal/api/wire"
	"github.com/GriffinCanCode/termdeck/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termdeck/internal/ptyhost"
	"github.com/GriffinCanCode/termdeck/internal/terminal"
)

// Version is reported by the root endpoint.
const Version = "0.1.0"

// Host is the process host served by the API.
type Host interface {
	terminal.ProcessHost
	OnSessionExit(fn ptyhost.ExitHandler) terminal.Subscription
	Scrollback(sessionID string) ([]byte, error)
	Info(ctx context.Context, sessionID string) (*ptyhost.SessionInfo, error)
	List() []ptyhost.SessionInfo
}

// Handlers serves the session endpoints.
type Handlers struct {
	host     Host
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandlers creates handlers over host. metrics may be nil.
func NewHandlers(host Host, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		host:    host,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Root reports service identity.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":  "termdeck",
		"version":  Version,
		"sessions": len(h.host.List()),
	})
}

// CreateSession starts a new shell.
func (h *Handlers) CreateSession(c *gin.Context) {
	var req wire.CreateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, wire.ErrorResponse{Error: err.Error()})
			return
		}
	}
	if req.Rows < 0 || req.Cols < 0 {
		c.JSON(http.StatusBadRequest, wire.ErrorResponse{Error: "rows and cols must not be negative"})
		return
	}

	handle, err := h.host.CreateSession(c.Request.Context(), terminal.CreateOptions{
		Cwd:   req.Cwd,
		Rows:  req.Rows,
		Cols:  req.Cols,
		Shell: req.Shell,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, wire.CreateResponse{ID: handle.ID, CreatedAt: handle.CreatedAt})
}

// ListSessions returns every session.
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.host.List()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession returns one session.
func (h *Handlers) GetSession(c *gin.Context) {
	info, err := h.host.Info(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// SessionActive reports whether the session's process is alive. Unknown
// sessions are reported inactive rather than missing.
func (h *Handlers) SessionActive(c *gin.Context) {
	active, err := h.host.IsSessionActive(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.ActiveResponse{Active: active})
}

// Scrollback returns recent raw output.
func (h *Handlers) Scrollback(c *gin.Context) {
	data, err := h.host.Scrollback(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
		c.Data(http.StatusOK, "application/octet-stream", data)
		return
	}

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Encoding", "gzip")
	c.Header("Vary", "Accept-Encoding")
	c.Status(http.StatusOK)
	gz := gzip.NewWriter(c.Writer)
	if _, err := gz.Write(data); err != nil {
		h.logger.Debug("Scrollback write failed", zap.Error(err))
	}
	if err := gz.Close(); err != nil {
		h.logger.Debug("Scrollback flush failed", zap.Error(err))
	}
}

// WriteInput writes bytes to a session.
func (h *Handlers) WriteInput(c *gin.Context) {
	var req wire.InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, wire.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.host.WriteSession(c.Request.Context(), c.Param("id"), req.Data); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Resize changes a session's geometry.
func (h *Handlers) Resize(c *gin.Context) {
	var req wire.ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, wire.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.host.ResizeSession(c.Request.Context(), c.Param("id"), req.Rows, req.Cols); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CloseSession kills a session.
func (h *Handlers) CloseSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.host.CloseSession(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": id})
}

// MetricsJSON returns the metrics snapshot.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ptyhost.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ptyhost.ErrSessionClosed):
		status = http.StatusConflict
	case errors.Is(err, ptyhost.ErrInvalidSize):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, wire.ErrorResponse{Error: err.Error()})
}
