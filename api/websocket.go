package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleRunFeed streams every completed run to the client as JSON until
// either side closes the connection.
func (s *Server) handleRunFeed(c *gin.Context) {
	if s.runner == nil {
		s.fail(c, http.StatusServiceUnavailable, "screener not configured", nil)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to upgrade run feed connection")
		return
	}
	defer conn.Close()

	runs, unsubscribe := s.runner.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("Run feed client connected")
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case run, ok := <-runs:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(run); err != nil {
				s.logger.WithError(err).Debug("Run feed client went away")
				return
			}
		}
	}
}
