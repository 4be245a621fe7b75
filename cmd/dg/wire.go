package main

import (
	"fmt"

	"github.com/datagoal/datagoal/internal/config"
	"github.com/datagoal/datagoal/internal/db"
	"github.com/datagoal/datagoal/internal/delivery"
	"github.com/datagoal/datagoal/internal/mailer"
	"github.com/datagoal/datagoal/internal/notify"
	"github.com/datagoal/datagoal/internal/notify/discord"
	"github.com/datagoal/datagoal/internal/notify/slack"
	"github.com/datagoal/datagoal/internal/qa"
	"gorm.io/gorm"
)

// connectFromConfig loads config and returns a GORM DB connection.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	return cfg, gormDB, nil
}

// buildController wires the lifecycle controller with the QA, mail, and
// generation backends named in config. Backends without configuration are
// left nil; the controller rejects operations that need them.
func buildController(cfg *config.Config, gormDB *gorm.DB) (*delivery.Controller, error) {
	opts := delivery.ControllerOpts{
		DB: gormDB,
		Thresholds: qa.Thresholds{
			Ready:  cfg.QA.ReadyThreshold,
			Review: cfg.QA.ReviewThreshold,
		},
	}
	if cfg.QA.Endpoint != "" {
		opts.Evaluator = qa.NewHTTPEvaluator(cfg.QA.Endpoint, cfg.QA.APIKey)
	}
	if cfg.Mailer.APIKey != "" {
		opts.Mailer = mailer.NewSendGridProvider(cfg.Mailer.APIKey, cfg.Mailer.FromEmail, cfg.Mailer.FromName)
	}
	if cfg.Pipeline.Endpoint != "" {
		opts.Generator = delivery.NewHTTPGenerator(cfg.Pipeline.Endpoint, cfg.Pipeline.APIKey)
	}
	return delivery.NewController(opts)
}

// buildNotifier wires the notifier with every chat adapter configured.
func buildNotifier(cfg *config.Config, gormDB *gorm.DB) (*notify.Notifier, error) {
	var adapters []notify.Adapter

	if cfg.Notify.Slack.BotToken != "" {
		a, err := slack.NewAdapter(slack.AdapterOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.ChannelID,
		})
		if err != nil {
			return nil, fmt.Errorf("slack adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	if cfg.Notify.Discord.BotToken != "" {
		a, err := discord.NewAdapter(discord.AdapterOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			return nil, fmt.Errorf("discord adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	return notify.NewNotifier(gormDB, adapters...), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
