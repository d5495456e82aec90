package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sudharshan-ks/dev-postmark-challenge/config"
	"github.com/sudharshan-ks/dev-postmark-challenge/middleware"
	"github.com/sudharshan-ks/dev-postmark-challenge/models"
	"github.com/sudharshan-ks/dev-postmark-challenge/services"
)

// QueryRequest asks for a question to be answered, or for SQL to be run as is
type QueryRequest struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

// queryErrorStatus maps each failure kind to the HTTP status it is reported with
var queryErrorStatus = map[services.ErrorKind]int{
	services.KindTranslationFailure:  http.StatusUnprocessableEntity,
	services.KindSyntaxError:         http.StatusUnprocessableEntity,
	services.KindSchemaMismatch:      http.StatusUnprocessableEntity,
	services.KindStatementNotAllowed: http.StatusForbidden,
	services.KindConstraintViolation: http.StatusConflict,
	services.KindExecutionTimeout:    http.StatusGatewayTimeout,
}

// ExecuteQuery handles POST /api/v1/queries - translates and runs a query.
// Sending sql instead of a question needs the query:sql scope.
// With ?format=xlsx the rows are returned as a workbook.
func ExecuteQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	req.SQL = strings.TrimSpace(req.SQL)
	if req.Question == "" && req.SQL == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Either question or sql is required",
			},
		})
		return
	}

	if req.SQL != "" && !middleware.Granted(c, middleware.RawSQLScope) {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INSUFFICIENT_SCOPE",
				"message": "Running SQL directly requires the " + middleware.RawSQLScope + " scope",
			},
		})
		return
	}

	executor := services.GetExecutor()
	translator := services.GetTranslator()
	if executor == nil || (req.SQL == "" && translator == nil) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SERVICE_UNAVAILABLE",
				"message": "Query service is not configured",
			},
		})
		return
	}

	userID, _ := middleware.GetUserID(c)
	log := config.GetLogger().WithFields(logrus.Fields{
		"request_id": middleware.GetRequestID(c),
		"user_id":    userID,
	})

	ctx := c.Request.Context()
	statement := req.SQL
	if statement == "" {
		sql, err := translator.Translate(ctx, req.Question, models.SchemaDDL)
		if err != nil {
			log.WithError(err).Warn("Translation failed")
			respondQueryError(c, err)
			return
		}
		statement = sql
	}

	result, err := executor.Execute(ctx, statement)
	if err != nil {
		log.WithError(err).WithField("sql", statement).Warn("Query failed")
		respondQueryError(c, err)
		return
	}

	if c.Query("format") == "xlsx" {
		data, err := services.BuildWorkbook(result)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NO_RESULT_ROWS",
					"message": "Statement returned no columns to export",
				},
			})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+services.WorkbookAttachmentName+`"`)
		c.Data(http.StatusOK, services.WorkbookContentType, data)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"question": req.Question,
			"result":   result.WithFiniteValues(),
		},
	})
}

func respondQueryError(c *gin.Context, err error) {
	var qe *services.QueryError
	if !errors.As(err, &qe) || qe.Kind == services.KindStoreFailure {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    string(services.KindStoreFailure),
				"message": "Failed to run query",
			},
		})
		return
	}

	status, ok := queryErrorStatus[qe.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	message := qe.Message
	if message == "" {
		message = qe.Error()
	}
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    string(qe.Kind),
			"message": message,
		},
	})
}
