// Package discord implements the notify Adapter for Discord.
package discord

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/datagoal/datagoal/internal/notify"
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendEmbed(channelID, embed, options...)
}

// Adapter implements notify.Adapter for Discord.
type Adapter struct {
	sess      session
	channelID string

	mu        sync.Mutex
	connected bool
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken  string
	ChannelID string
}

// NewAdapter creates a Discord adapter.
func NewAdapter(opts AdapterOpts) (*Adapter, error) {
	if opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel ID is required")
	}
	s, err := discordgo.New("Bot " + opts.BotToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return &Adapter{sess: &realSession{s: s}, channelID: opts.ChannelID}, nil
}

// Connect opens the gateway session.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return nil
	}
	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	a.connected = true
	return nil
}

// Send posts the event as an embed in the configured channel.
func (a *Adapter) Send(ctx context.Context, evt notify.Event) error {
	fields := make([]*discordgo.MessageEmbedField, len(evt.Fields))
	for i, f := range evt.Fields {
		fields[i] = &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Short}
	}

	embed := &discordgo.MessageEmbed{
		Title:       evt.Title,
		Description: evt.Body,
		Color:       embedColor(notify.SeverityColor(evt.Severity)),
		Fields:      fields,
	}

	if _, err := a.sess.ChannelMessageSendEmbed(a.channelID, embed); err != nil {
		return fmt.Errorf("discord: send embed: %w", err)
	}
	return nil
}

// Close shuts down the gateway session.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil
	}
	a.connected = false
	if err := a.sess.Close(); err != nil {
		return fmt.Errorf("discord: close session: %w", err)
	}
	return nil
}

// embedColor converts a "#rrggbb" color hint to the integer Discord expects.
func embedColor(hex string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0x2d9cdb
	}
	return int(v)
}
