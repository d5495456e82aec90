package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sudharshan-ks/dev-postmark-challenge/services"
	"github.com/sudharshan-ks/dev-postmark-challenge/utils"
)

// GetChart handles GET /api/v1/charts/:filename - serves an archived chart
func GetChart(c *gin.Context) {
	filename := c.Param("filename")

	// Only names the archive hands out are accepted, which rules out traversal
	if err := utils.ValidateChartFilename(filename); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_FILENAME",
				"message": "Invalid filename",
			},
		})
		return
	}

	archive := services.GetChartArchive()
	if archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SERVICE_UNAVAILABLE",
				"message": "Chart archive is not configured",
			},
		})
		return
	}

	location, err := archive.Locate(c.Request.Context(), filename)
	if errors.Is(err, services.ErrChartNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_NOT_FOUND",
				"message": "Chart not found",
			},
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STORAGE_ERROR",
				"message": "Failed to locate chart",
			},
		})
		return
	}

	if location.URL != "" {
		c.Redirect(http.StatusFound, location.URL)
		return
	}

	c.Header("Content-Type", "image/png")
	c.Header("Cache-Control", "public, max-age=86400") // Cache for 24 hours
	c.File(location.Path)
}
