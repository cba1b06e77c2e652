package services

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailMessage is one rendered reminder addressed to one recipient
type EmailMessage struct {
	ToEmail   string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
	// Categories are attached for provider-side analytics
	Categories []string
}

// SendResult is what the provider reported. StatusCode is 0 when the request
// never got a response.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	Error             string
	StatusCode        int
}

// EmailTransport delivers a single message
type EmailTransport interface {
	Send(ctx context.Context, msg EmailMessage) SendResult
}

// Transient reports whether a failed send may succeed if retried
func (r SendResult) Transient() bool {
	if r.Success {
		return false
	}
	switch {
	case r.StatusCode == 0:
		return true
	case r.StatusCode == http.StatusRequestTimeout, r.StatusCode == http.StatusTooManyRequests:
		return true
	case r.StatusCode >= 500:
		return true
	}
	return false
}

type SendGridTransport struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridTransport(apiKey, fromEmail, fromName string) *SendGridTransport {
	return &SendGridTransport{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// NewSendGridTransportWithHost points the client at a different API host
func NewSendGridTransportWithHost(apiKey, host, fromEmail, fromName string) *SendGridTransport {
	request := sendgrid.GetRequest(apiKey, "/v3/mail/send", host)
	request.Method = "POST"
	return &SendGridTransport{
		client:    &sendgrid.Client{Request: request},
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *SendGridTransport) Send(ctx context.Context, msg EmailMessage) SendResult {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.PlainText, msg.HTML)
	if len(msg.Categories) > 0 {
		message.AddCategories(msg.Categories...)
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil && (response == nil || response.StatusCode < 400) {
		res := SendResult{Error: err.Error()}
		if response != nil {
			res.StatusCode = response.StatusCode
		}
		return res
	}

	if response.StatusCode >= 400 {
		body := response.Body
		if len(body) > 500 {
			body = body[:500]
		}
		return SendResult{
			StatusCode: response.StatusCode,
			Error:      fmt.Sprintf("failed to send email to %s: %d %s", msg.ToEmail, response.StatusCode, body),
		}
	}

	var messageID string
	for key, values := range response.Headers {
		if http.CanonicalHeaderKey(key) == "X-Message-Id" && len(values) > 0 {
			messageID = values[0]
		}
	}
	return SendResult{Success: true, StatusCode: response.StatusCode, ProviderMessageID: messageID}
}

// LogTransport writes messages to the log instead of sending them. Used
// when no SendGrid key is configured.
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, msg EmailMessage) SendResult {
	id := "log-" + uuid.NewString()
	log.Printf("Email (not sent) %s to %s <%s>: %s", id, msg.ToName, msg.ToEmail, msg.Subject)
	return SendResult{Success: true, StatusCode: http.StatusAccepted, ProviderMessageID: id}
}
