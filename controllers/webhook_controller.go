package controllers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sudharshan-ks/dev-postmark-challenge/config"
	"github.com/sudharshan-ks/dev-postmark-challenge/middleware"
	"github.com/sudharshan-ks/dev-postmark-challenge/services"
)

// InboundEmailRequest is the Postmark inbound webhook payload. The lower-case
// stripped-text and Body fields are accepted from older mail gateways.
type InboundEmailRequest struct {
	From     string `json:"From"`
	FromName string `json:"FromName"`
	FromFull struct {
		Email string `json:"Email"`
		Name  string `json:"Name"`
	} `json:"FromFull"`
	Subject           string `json:"Subject"`
	TextBody          string `json:"TextBody"`
	HtmlBody          string `json:"HtmlBody"`
	StrippedTextReply string `json:"StrippedTextReply"`
	StrippedText      string `json:"stripped-text"`
	Body              string `json:"Body"`
	MessageID         string `json:"MessageID"`
}

// Question returns the first non-empty of the reply text, the plain body and the subject
func (r *InboundEmailRequest) Question() string {
	for _, candidate := range []string{r.StrippedTextReply, r.TextBody, r.StrippedText, r.Body, r.Subject} {
		if q := strings.TrimSpace(candidate); q != "" {
			return q
		}
	}
	return ""
}

// Sender returns the parsed sender address
func (r *InboundEmailRequest) Sender() (*mail.Address, error) {
	raw := strings.TrimSpace(r.FromFull.Email)
	if raw == "" {
		raw = strings.TrimSpace(r.From)
	}
	if raw == "" {
		return nil, errors.New("missing sender")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return nil, err
	}
	if addr.Name == "" {
		addr.Name = strings.TrimSpace(r.FromFull.Name)
	}
	if addr.Name == "" {
		addr.Name = strings.TrimSpace(r.FromName)
	}
	return addr, nil
}

// HandleInboundEmail handles POST /webhook - answers a question received by email
func HandleInboundEmail(c *gin.Context) {
	var req InboundEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid inbound email payload",
				"details": err.Error(),
			},
		})
		return
	}

	sender, err := req.Sender()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_SENDER",
				"message": "Email has no valid sender address",
			},
		})
		return
	}

	question := req.Question()
	if question == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_QUESTION",
				"message": "No query found in email.",
			},
		})
		return
	}

	orchestrator := services.GetOrchestrator()
	if orchestrator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SERVICE_UNAVAILABLE",
				"message": "Email pipeline is not configured",
			},
		})
		return
	}

	outcome, err := orchestrator.Handle(c.Request.Context(), services.InboundEmail{
		From:      sender.Address,
		FromName:  sender.Name,
		Subject:   req.Subject,
		Question:  question,
		MessageID: req.MessageID,
	})
	if errors.Is(err, services.ErrDuplicate) {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DUPLICATE_MESSAGE",
				"message": "This email has already been processed",
			},
		})
		return
	}
	if err != nil {
		config.LogError(config.GetLogger(), "controllers", "HandleInboundEmail", middleware.GetRequestID(c), req.MessageID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to process email",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    outcome,
	})
}
