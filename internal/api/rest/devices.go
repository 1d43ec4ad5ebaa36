package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/types"
)

// GET /api/v1/devices
func (s *Server) listDevices(c *gin.Context) {
	devices := s.lm.DeviceManager().Devices()

	response := make([]types.DeviceInfo, 0, len(devices))
	for _, device := range devices {
		response = append(response, device.Info())
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": response,
		"count":   len(response),
	})
}

// GET /api/v1/devices/:id
func (s *Server) getDevice(c *gin.Context) {
	device, exists := s.lm.DeviceManager().Get(c.Param("id"))
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	def := device.Definition()
	c.JSON(http.StatusOK, gin.H{
		"info":       device.Info(),
		"timeout_ms": def.TimeoutMs,
		"channels":   def.Channels,
		"tags":       def.Tags,
	})
}

// POST /api/v1/devices/:id/reconnect
func (s *Server) reconnectDevice(c *gin.Context) {
	id := c.Param("id")
	if err := s.lm.DeviceManager().Reconnect(c.Request.Context(), id); err != nil {
		if errors.Is(err, &types.DeviceError{Kind: types.ErrConfiguration}) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		s.logger.Warn("Reconnect failed",
			zap.String("device_id", id), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	device, _ := s.lm.DeviceManager().Get(id)
	c.JSON(http.StatusOK, gin.H{
		"message": "device reconnected",
		"info":    device.Info(),
	})
}
