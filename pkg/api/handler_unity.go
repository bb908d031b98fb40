package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// unityHandler upgrades GET /unity to the peer WebSocket transport and
// delegates to the ConnectionManager. The server binds to loopback only, so
// origin checks are skipped.
func (s *Server) unityHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "websocket upgrade failed")
	}

	// HandleConnection blocks until the editor disconnects.
	s.manager.HandleConnection(c.Request().Context(), conn)
	return nil
}
