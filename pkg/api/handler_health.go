package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/DirtybitGames/unityctl-sub001/pkg/version"
)

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status         string   `json:"status"`
	ProjectID      string   `json:"projectId"`
	UnityConnected bool     `json:"unityConnected"`
	BridgeVersion  string   `json:"bridgeVersion"`
	UnityVersion   string   `json:"unityVersion,omitempty"`
	Capabilities   []string `json:"capabilities,omitempty"`
}

// StatusResponse is the GET /status body: a richer operational snapshot
// than /health, for diagnostics.
type StatusResponse struct {
	ProjectID       string `json:"projectId"`
	UnityConnected  bool   `json:"unityConnected"`
	Reloading       bool   `json:"reloading"`
	PendingRequests int    `json:"pendingRequests"`
	ArmedWaiters    int    `json:"armedWaiters"`
	LogEntries      int    `json:"logEntries"`
	LogSubscribers  int    `json:"logSubscribers"`
}

// healthHandler handles GET /health. It always answers 200 while the bridge
// is serving; peer presence is a field, not a failure.
func (s *Server) healthHandler(c *echo.Context) error {
	resp := &HealthResponse{
		Status:         "ok",
		ProjectID:      s.projectID,
		UnityConnected: s.manager.Connected(),
		BridgeVersion:  version.GitCommit,
	}
	if info := s.manager.PeerInfo(); info != nil {
		resp.UnityVersion = info.UnityVersion
		resp.Capabilities = info.Capabilities
	}
	return c.JSON(http.StatusOK, resp)
}

// statusHandler handles GET /status.
func (s *Server) statusHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &StatusResponse{
		ProjectID:       s.projectID,
		UnityConnected:  s.manager.Connected(),
		Reloading:       s.reload.Reloading(),
		PendingRequests: s.requests.Pending(),
		ArmedWaiters:    s.waiters.Active(),
		LogEntries:      s.logs.Len(),
		LogSubscribers:  s.logs.Subscribers(),
	})
}
