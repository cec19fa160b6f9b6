package hostclient

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termdeck/internal/api/wire"
)

// Start opens the stream in the background. It keeps reconnecting until
// Close is called.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		c.started = true
		go c.run()
	})
}

// WaitConnected blocks until the stream has connected once.
func (c *Client) WaitConnected(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether the stream is currently up.
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

// Close stops the stream and waits for the reader to exit.
func (c *Client) Close() error {
	c.cancel()
	c.startOnce.Do(func() {})
	if c.started {
		<-c.done
	}
	return nil
}

func (c *Client) run() {
	defer close(c.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	op := func() error {
		err := c.stream(b)
		if c.ctx.Err() != nil {
			return backoff.Permanent(c.ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Stream disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("retry_in", wait),
		)
	}
	_ = backoff.RetryNotify(op, backoff.WithContext(b, c.ctx), notify)
}

// stream holds one connection until it fails.
func (c *Client) stream(b backoff.BackOff) error {
	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.streamURL, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	b.Reset()
	c.setConn(conn)
	c.readyOnce.Do(func() { close(c.ready) })
	c.logger.Debug("Stream connected", zap.String("url", c.streamURL))

	stop := context.AfterFunc(c.ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		c.setConn(nil)
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		frame, err := wire.Decode(msg)
		if err != nil {
			c.logger.Debug("Dropping malformed frame", zap.Error(err))
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(f wire.Frame) {
	switch f.Type {
	case wire.TypeOutput:
		c.mu.RLock()
		defer c.mu.RUnlock()
		for _, fn := range c.outputs {
			fn(f.SessionID, f.Data)
		}
	case wire.TypeExit:
		code := -1
		if f.Code != nil {
			code = *f.Code
		}
		c.mu.RLock()
		defer c.mu.RUnlock()
		for _, fn := range c.exits {
			fn(f.SessionID, code)
		}
	case wire.TypeError:
		c.logger.Debug("Server reported stream error",
			zap.String("session_id", f.SessionID),
			zap.String("message", f.Message),
		)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Client) writeFrame(f wire.Frame) error {
	msg, err := wire.Encode(f)
	if err != nil {
		return err
	}
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return errNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}
