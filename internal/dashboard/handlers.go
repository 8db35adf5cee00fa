package dashboard

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"heatflow/internal/metrics"
	"heatflow/processor"
)

type zoomRequest struct {
	Fraction float64 `json:"fraction"`
	Delta    float64 `json:"delta"`
}

type panMoveRequest struct {
	GestureID string  `json:"gesture_id"`
	DX        float64 `json:"dx"`
	DY        float64 `json:"dy"`
}

type panEndRequest struct {
	GestureID string `json:"gesture_id"`
}

type resizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// limitGestures rejects gestures beyond the configured rate so a runaway
// client cannot flood the engine loop.
func (s *Server) limitGestures(c *gin.Context) {
	if !s.gestureLimiter.Allow() {
		metrics.EmitDropMetric(s.log, metrics.DropMetricGesture, "dashboard", "", c.FullPath())
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many gestures"})
		return
	}
	c.Next()
}

func (s *Server) gestureContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), gestureTimeout)
}

func (s *Server) respond(c *gin.Context, state processor.ViewState, err error) {
	if err == nil {
		c.JSON(http.StatusOK, state)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, processor.ErrUnknownGesture):
		status = http.StatusNotFound
	case errors.Is(err, processor.ErrInvalidCanvas):
		status = http.StatusBadRequest
	case errors.Is(err, processor.ErrEngineStopped),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.WithComponent("dashboard").WithError(err).Warn("gesture failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (s *Server) handleFrame(c *gin.Context) {
	frame, ok := s.frames.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no frame rendered yet"})
		return
	}

	etag := `"` + strconv.FormatUint(frame.Seq, 10) + `"`
	c.Header("Cache-Control", "no-store")
	c.Header("ETag", etag)
	c.Header("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "image/png", frame.PNG)
}

func (s *Server) handleOrders(c *gin.Context) {
	limit := defaultOrdersLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"orders": s.frames.Orders(limit)})
}

func (s *Server) handleView(c *gin.Context) {
	ctx, cancel := s.gestureContext(c)
	defer cancel()

	state, err := s.engine.View(ctx)
	if err != nil {
		s.respond(c, state, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"view": state, "stats": s.engine.Stats()})
}

func (s *Server) handleZoom(c *gin.Context) {
	var req zoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !finite(req.Fraction, req.Delta) || req.Fraction < 0 || req.Fraction > 1 {
		badRequest(c, "fraction must be within [0, 1]")
		return
	}

	ctx, cancel := s.gestureContext(c)
	defer cancel()
	state, err := s.engine.Zoom(ctx, req.Fraction, req.Delta)
	s.respond(c, state, err)
}

func (s *Server) handlePanStart(c *gin.Context) {
	ctx, cancel := s.gestureContext(c)
	defer cancel()
	state, err := s.engine.PanStart(ctx)
	s.respond(c, state, err)
}

func (s *Server) handlePanMove(c *gin.Context) {
	var req panMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.GestureID == "" || !finite(req.DX, req.DY) {
		badRequest(c, "gesture_id and finite dx, dy are required")
		return
	}

	ctx, cancel := s.gestureContext(c)
	defer cancel()
	state, err := s.engine.PanMove(ctx, req.GestureID, req.DX, req.DY)
	s.respond(c, state, err)
}

func (s *Server) handlePanEnd(c *gin.Context) {
	var req panEndRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.GestureID == "" {
		badRequest(c, "gesture_id is required")
		return
	}

	ctx, cancel := s.gestureContext(c)
	defer cancel()
	state, err := s.engine.PanEnd(ctx, req.GestureID)
	s.respond(c, state, err)
}

func (s *Server) handleReset(c *gin.Context) {
	ctx, cancel := s.gestureContext(c)
	defer cancel()
	state, err := s.engine.Reset(ctx)
	s.respond(c, state, err)
}

func (s *Server) handleResize(c *gin.Context) {
	var req resizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := s.gestureContext(c)
	defer cancel()
	state, err := s.engine.Resize(ctx, req.Width, req.Height)
	s.respond(c, state, err)
}
