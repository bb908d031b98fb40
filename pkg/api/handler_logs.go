package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/DirtybitGames/unityctl-sub001/pkg/logstore"
)

// defaultTailLines is the tail size when the client does not pass lines.
// lines=0 explicitly requests the full buffer.
const defaultTailLines = 100

// streamBufferSize bounds each SSE subscriber's queue; a stalled client
// loses oldest entries instead of stalling ingestion.
const streamBufferSize = 100

// ssePingInterval keeps idle streams alive through proxies.
const ssePingInterval = 15 * time.Second

// TailResponse is the GET /logs/tail body.
type TailResponse struct {
	Entries []logstore.Entry `json:"entries"`
}

// ClearRequest is the optional POST /console/clear body.
type ClearRequest struct {
	Reason string `json:"reason,omitempty"`
}

// logsTailHandler handles GET /logs/tail?lines=N&source=S&include_cleared=B.
func (s *Server) logsTailHandler(c *echo.Context) error {
	lines := defaultTailLines
	if v := c.QueryParam("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "lines must be a non-negative integer")
		}
		lines = n
	}

	source := c.QueryParam("source")
	if source == "" {
		source = logstore.SourceAll
	}
	includeCleared := c.QueryParam("include_cleared") == "true"

	entries := s.logs.Recent(lines, source, includeCleared)
	return c.JSON(http.StatusOK, &TailResponse{Entries: entries})
}

// logsStreamHandler handles GET /logs/stream?source=S as server-sent
// events. Each entry is one `data:` record; the stream ends when the client
// disconnects.
func (s *Server) logsStreamHandler(c *echo.Context) error {
	source := c.QueryParam("source")
	if source == "" {
		source = logstore.SourceAll
	}

	res := c.Response()
	h := res.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(res)
	_ = rc.Flush()

	sub := s.logs.Subscribe(streamBufferSize)
	defer s.logs.Unsubscribe(sub)

	ctx := c.Request().Context()
	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-sub.C:
			if !ok {
				return nil
			}
			if source != logstore.SourceAll && entry.Source != source {
				continue
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
				return nil
			}
			_ = rc.Flush()
		case <-ping.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			_ = rc.Flush()
		}
	}
}

// consoleClearHandler handles POST /console/clear: advances the watermark
// without deleting anything.
func (s *Server) consoleClearHandler(c *echo.Context) error {
	var req ClearRequest
	// Body is optional; ignore bind errors from an empty body.
	_ = c.Bind(&req)

	mark := s.logs.Clear(req.Reason)
	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"watermark": mark,
	})
}
