package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sudharshan-ks/dev-postmark-challenge/models"
)

// GetSchema handles GET /api/v1/schema - returns the schema the translator is prompted with
func GetSchema(c *gin.Context) {
	catalog, err := models.GetCatalog()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SCHEMA_ERROR",
				"message": "Failed to load schema catalog",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"ddl":    models.SchemaDDL,
			"tables": catalog.Tables,
		},
	})
}
