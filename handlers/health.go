package handlers

import (
	"net/http"

	"staybook/utils"

	"github.com/gin-gonic/gin"
)

// HealthHandler serves the latest snapshot taken by the health monitor.
func HealthHandler(c *gin.Context) {
	status := utils.GetHealthStatus()
	if !status.Healthy() {
		c.JSON(http.StatusServiceUnavailable, utils.Response{
			Data:       status,
			StatusCode: http.StatusServiceUnavailable,
			Message:    "degraded",
		})
		return
	}
	utils.JSONData(c, http.StatusOK, "ok", status)
}
