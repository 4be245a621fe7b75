package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const sendgridMailEndpoint = "https://api.sendgrid.com/v3/mail/send"

// SendGridProvider sends report emails via the SendGrid v3 mail API.
type SendGridProvider struct {
	apiKey    string
	fromEmail string
	fromName  string
	endpoint  string
	client    *http.Client
}

// NewSendGridProvider creates a SendGrid-backed mail provider.
func NewSendGridProvider(apiKey, fromEmail, fromName string) *SendGridProvider {
	return &SendGridProvider{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
		endpoint:  sendgridMailEndpoint,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *SendGridProvider) Type() string { return "sendgrid" }

// Deliver posts the message to the SendGrid mail endpoint. Non-2xx responses
// are returned as errors with the response body for diagnosis.
func (p *SendGridProvider) Deliver(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("mailer: no recipients")
	}

	to := make([]sgAddress, len(msg.To))
	for i, addr := range msg.To {
		to[i] = sgAddress{Email: addr}
	}

	payload := sgMailPayload{
		Personalizations: []sgPersonalization{{To: to}},
		From:             sgAddress{Email: p.fromEmail, Name: p.fromName},
		Subject:          msg.Subject,
		Content:          []sgContent{{Type: "text/plain", Value: msg.Body}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mailer: marshal SendGrid payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mailer: create SendGrid request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("mailer: SendGrid request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mailer: SendGrid returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// SendGrid v3 Mail Send API payload types.
type sgMailPayload struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}
