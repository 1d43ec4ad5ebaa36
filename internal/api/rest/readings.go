package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /api/v1/readings/latest
func (s *Server) latestReadings(c *gin.Context) {
	readings := s.lm.Scheduler().Latest()
	c.JSON(http.StatusOK, gin.H{
		"readings": readings,
		"count":    len(readings),
	})
}
