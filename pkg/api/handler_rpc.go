package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// RPCRequest is the POST /rpc body.
type RPCRequest struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args,omitempty"`
	AgentID string         `json:"agentId,omitempty"`
}

// rpcHandler handles POST /rpc. The response body is the peer's response
// frame, with the terminal event payload substituted as the result for
// event-gated commands. Dispatch failures map to 503/504/499/500.
func (s *Server) rpcHandler(c *echo.Context) error {
	var req RPCRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Command == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "command field is required")
	}

	resp, err := s.dispatcher.Dispatch(c.Request().Context(), req.Command, req.AgentID, req.Args)
	if err != nil {
		return mapBridgeError(err)
	}
	return c.JSON(http.StatusOK, resp)
}
