package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/fleetwatch-core/internal/models"
	"github.com/platformbuilds/fleetwatch-core/internal/pipeline"
)

type ingestRequest struct {
	Samples []models.MetricSample `json:"samples" binding:"required"`
}

type ingestResponse struct {
	Accepted    int                      `json:"accepted"`
	Rejected    int                      `json:"rejected"`
	Transitions []models.AlertTransition `json:"transitions,omitempty"`
}

func (s *Server) healthCheck(c *gin.Context) {
	status := gin.H{"status": "healthy"}
	if s.cache != nil {
		if err := s.cache.HealthCheck(c.Request.Context()); err != nil {
			status["cache"] = "degraded"
		} else {
			status["cache"] = "ok"
		}
	}
	c.JSON(http.StatusOK, status)
}

// ingestSamples runs a sample batch through the pipeline. Invalid samples are
// counted and skipped; the rest of the batch still processes.
func (s *Server) ingestSamples(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Samples) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no samples provided"})
		return
	}

	resp := ingestResponse{}
	for _, sample := range req.Samples {
		transition, err := s.pipeline.Process(c.Request.Context(), sample)
		if err != nil {
			if errors.Is(err, pipeline.ErrInvalidSample) {
				resp.Rejected++
				continue
			}
			s.logger.Error("sample processing failed",
				"device_id", sample.DeviceID, "metric", sample.Metric, "error", err)
			resp.Rejected++
			continue
		}
		resp.Accepted++
		if transition.Action != models.ActionNone {
			resp.Transitions = append(resp.Transitions, transition)
		}
	}

	c.JSON(http.StatusAccepted, resp)
}

func (s *Server) deviceInsights(c *gin.Context) {
	deviceID := c.Param("id")

	generated, err := s.generator.GenerateForDevice(c.Request.Context(), deviceID)
	if err != nil {
		s.logger.Error("insight generation failed", "device_id", deviceID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "insight generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id": deviceID,
		"insights":  generated,
		"count":     len(generated),
	})
}

func (s *Server) deviceAlerts(c *gin.Context) {
	deviceID := c.Param("id")

	active, err := s.store.GetActiveAlerts(c.Request.Context(), deviceID)
	if err != nil {
		s.logger.Error("alert lookup failed", "device_id", deviceID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id": deviceID,
		"alerts":    active,
		"count":     len(active),
	})
}
