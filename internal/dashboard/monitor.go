package dashboard

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func validStage(stage string) bool {
	switch stage {
	case "", stageFeed, stageRender, stageDashboard, stageSystem:
		return true
	default:
		return false
	}
}

func stageParam(c *gin.Context) (string, bool) {
	stage := strings.ToLower(strings.TrimSpace(c.Query("stage")))
	if !validStage(stage) {
		badRequest(c, "stage must be one of feed, render, dashboard, system")
		return "", false
	}
	return stage, true
}

// handleMetrics serves the retained metric events, optionally narrowed by
// stage and name, with the running counter totals.
func (s *Server) handleMetrics(c *gin.Context) {
	stage, ok := stageParam(c)
	if !ok {
		return
	}
	found := s.metricStore.query(metricFilter{Stage: stage, Name: c.Query("name")})

	payload := make([]gin.H, 0, len(found))
	for _, m := range found {
		payload = append(payload, gin.H{
			"timestamp": m.Timestamp,
			"stage":     metricStage(m),
			"component": m.Component,
			"name":      m.Name,
			"value":     m.Value,
			"type":      m.Type,
			"fields":    m.Fields,
		})
	}
	c.JSON(http.StatusOK, gin.H{"metrics": payload, "counters": s.metricStore.counters()})
}

// handleLogs serves captured log lines, optionally narrowed by stage and a
// minimum level (level=warn returns warnings and worse).
func (s *Server) handleLogs(c *gin.Context) {
	stage, ok := stageParam(c)
	if !ok {
		return
	}
	filter := logFilter{Stage: stage, MinLevel: logrus.TraceLevel}
	if raw := c.Query("level"); raw != "" {
		lvl, err := logrus.ParseLevel(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		filter.MinLevel = lvl
	}
	c.JSON(http.StatusOK, gin.H{"logs": s.logStore.query(filter)})
}

func (s *Server) handleResources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"resources": s.resourceSampler.snapshot()})
}
