package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/loykin/taskbridge/internal/signal"
)

var upgrader = websocket.Upgrader{
	// the relay binds to loopback and is guarded by JWT when exposed
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamSignals upgrades to a websocket and forwards invalidations for the
// requested topic, or every topic when none is given.
func (s *Server) streamSignals(c *gin.Context) {
	topics := signal.Topics()
	if q := c.Query("topic"); q != "" {
		t := signal.Topic(q)
		if !t.Valid() {
			c.JSON(http.StatusBadRequest, errorBody("unknown topic "+q))
			return
		}
		topics = []signal.Topic{t}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	s.opts.Metrics.IncWSConnections()
	defer s.opts.Metrics.DecWSConnections()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// a single merged wake-up channel keeps one writer goroutine
	wake := make(chan signal.Topic, len(topics))
	for _, t := range topics {
		sub := s.opts.Hub.Subscribe(t)
		defer sub.Close()
		go func(sub *signal.Subscription) {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-sub.C():
					if !ok {
						cancel()
						return
					}
					select {
					case wake <- sub.Topic():
					case <-ctx.Done():
						return
					}
				}
			}
		}(sub)
	}

	// reader: only control frames are expected; any error ends the stream
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
		return conn.WriteJSON(v)
	}
	if err := write(SignalMessage{Type: MessageHello, Version: s.opts.Snapshots.Current().Version}); err != nil {
		return
	}

	ping := time.NewTicker(s.opts.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case t := <-wake:
			msg := SignalMessage{Type: MessageInvalidate, Topic: string(t), Version: s.opts.Snapshots.Current().Version}
			if err := write(msg); err != nil {
				s.logger.Debug("signal stream write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout)); err != nil {
				return
			}
		}
	}
}
