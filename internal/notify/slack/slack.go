// Package slack implements the notify Adapter for Slack using the Web API.
package slack

import (
	"context"
	"fmt"
	"sync"

	"github.com/datagoal/datagoal/internal/notify"
	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Adapter implements notify.Adapter for Slack.
type Adapter struct {
	client    slackClient
	channelID string

	mu        sync.Mutex
	connected bool
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // channel to post events to
}

// NewAdapter creates a Slack adapter.
func NewAdapter(opts AdapterOpts) (*Adapter, error) {
	if opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel ID is required")
	}
	return &Adapter{
		client:    slackapi.New(opts.BotToken),
		channelID: opts.ChannelID,
	}, nil
}

// Connect verifies the bot token against the Slack API.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return nil
	}
	if _, err := a.client.AuthTest(); err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.connected = true
	return nil
}

// Send posts the event as an attachment-decorated message.
func (a *Adapter) Send(ctx context.Context, evt notify.Event) error {
	fields := make([]slackapi.AttachmentField, len(evt.Fields))
	for i, f := range evt.Fields {
		fields[i] = slackapi.AttachmentField{Title: f.Name, Value: f.Value, Short: f.Short}
	}

	attachment := slackapi.Attachment{
		Color:  notify.SeverityColor(evt.Severity),
		Title:  evt.Title,
		Text:   evt.Body,
		Fields: fields,
	}

	_, _, err := a.client.PostMessage(a.channelID,
		slackapi.MsgOptionAttachments(attachment))
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Close is a no-op: the Web API client holds no persistent connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}
