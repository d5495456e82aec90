package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mrz1836/postmark"
	"github.com/sirupsen/logrus"
	"github.com/sudharshan-ks/dev-postmark-challenge/config"
)

// Attachment is a file sent with a reply
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// OutboundMessage is a reply to the sender of a question
type OutboundMessage struct {
	To          string
	Subject     string
	Body        string
	InReplyTo   string // Message-ID of the inbound email, for threading
	Attachments []Attachment
}

// Messenger delivers replies
type Messenger interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// PostmarkMessenger sends email through the Postmark /email endpoint
type PostmarkMessenger struct {
	from   string
	client *postmark.Client
}

var messengerInstance Messenger

// NewPostmarkMessenger creates a Postmark client from cfg
func NewPostmarkMessenger(cfg *config.Config) *PostmarkMessenger {
	client := postmark.NewClient(cfg.PostmarkToken, "")
	client.BaseURL = strings.TrimRight(cfg.PostmarkBaseURL, "/")
	client.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
	}
	return &PostmarkMessenger{
		from:   cfg.PostmarkFrom,
		client: client,
	}
}

// InitMessenger sets the global messenger to a Postmark client
func InitMessenger(cfg *config.Config) Messenger {
	messengerInstance = NewPostmarkMessenger(cfg)
	return messengerInstance
}

// GetMessenger returns the global messenger
func GetMessenger() Messenger {
	return messengerInstance
}

// SetMessenger sets the global messenger (primarily for testing)
func SetMessenger(m Messenger) {
	messengerInstance = m
}

// postmarkEmail maps msg onto the Postmark payload, threading it under the
// inbound message when InReplyTo is known
func (p *PostmarkMessenger) postmarkEmail(msg OutboundMessage) postmark.Email {
	email := postmark.Email{
		From:          p.from,
		To:            msg.To,
		Subject:       msg.Subject,
		TextBody:      msg.Body,
		MessageStream: "outbound",
	}
	if msg.InReplyTo != "" {
		email.Headers = []postmark.Header{
			{Name: "In-Reply-To", Value: msg.InReplyTo},
			{Name: "References", Value: msg.InReplyTo},
		}
	}
	for _, a := range msg.Attachments {
		email.Attachments = append(email.Attachments, postmark.Attachment{
			Name:        a.Name,
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			ContentType: a.ContentType,
		})
	}
	return email
}

// Send delivers msg. Failures are MessengerFailure errors.
func (p *PostmarkMessenger) Send(ctx context.Context, msg OutboundMessage) error {
	if p.client.ServerToken == "" {
		return newQueryError(KindMessengerFailure, "POSTMARK_TOKEN is not set", nil)
	}
	if msg.To == "" {
		return newQueryError(KindMessengerFailure, "reply has no recipient", nil)
	}

	res, err := p.client.SendEmail(ctx, p.postmarkEmail(msg))
	if err != nil {
		code := res.ErrorCode
		var apiErr postmark.APIError
		if errors.As(err, &apiErr) {
			code = apiErr.ErrorCode
		}
		if code != 0 {
			return newQueryError(KindMessengerFailure, fmt.Sprintf("Postmark rejected the email (code %d)", code), err)
		}
		return newQueryError(KindMessengerFailure, "failed to reach Postmark", err)
	}

	config.GetLogger().WithFields(logrus.Fields{
		"to":          msg.To,
		"postmark_id": res.MessageID,
		"attachments": len(msg.Attachments),
	}).Info("Reply sent")
	return nil
}
