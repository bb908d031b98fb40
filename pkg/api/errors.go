package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/DirtybitGames/unityctl-sub001/pkg/bridge"
)

// StatusClientClosedRequest is the nginx-convention status for a caller
// that went away before the work finished.
const StatusClientClosedRequest = 499

// mapBridgeError maps dispatch-layer errors to HTTP error responses.
// Peer-reported command errors never reach here — they travel back as a
// 200 with status=error in the body.
func mapBridgeError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, bridge.ErrPeerAbsent):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, bridge.ErrTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, bridge.ErrCancelled),
		errors.Is(err, context.Canceled):
		return echo.NewHTTPError(StatusClientClosedRequest, err.Error())
	}

	slog.Error("Unexpected dispatch error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal bridge error")
}
