package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nhle/pmsync/internal/logger"
)

// writeTimeout bounds a single websocket write.
const writeTimeout = 5 * time.Second

// handleEvents upgrades to a websocket and streams run events as JSON
// until the client goes away.
func (s *Server) handleEvents(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.F("error", err))
		return nil
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	events, unsubscribe := s.sync.Events().Subscribe()
	defer unsubscribe()

	// Client messages are ignored; CloseRead cancels ctx on disconnect.
	ctx := conn.CloseRead(c.Request().Context())

	logger.Debug("event subscriber connected", logger.F("remote", c.RealIP()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Error("encoding event failed", logger.F("error", err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Debug("event subscriber gone", logger.F("error", err))
				return nil
			}
		}
	}
}
