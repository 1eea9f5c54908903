// Package notify pushes noteworthy task transitions to a human side-channel.
package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"github.com/clawdeck/clawdeck/internal/config"
	"github.com/clawdeck/clawdeck/internal/pkg/logs"
	"github.com/clawdeck/clawdeck/internal/task"
)

// Telegram sends transition notifications to a single chat. Delivery is
// best effort; a failed send is logged and dropped, never retried.
type Telegram struct {
	bot    *bot.Bot
	chatID string
}

var _ task.Notifier = (*Telegram)(nil)

func NewTelegram(cfg config.TelegramNotifyConfig) (*Telegram, error) {
	b, err := bot.New(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: cfg.ChatID}, nil
}

func (t *Telegram) TaskTransition(ctx context.Context, tk *task.Task, action task.Action) {
	var text string
	switch action {
	case task.ActionPlan:
		text = fmt.Sprintf("📋 task #%d planned: %s (priority %d)", tk.ID, tk.Title, tk.Priority)
	case task.ActionRun:
		agent := tk.AgentID
		if agent == "" {
			agent = "unassigned"
		}
		text = fmt.Sprintf("🏃 task #%d running: %s (agent %s)", tk.ID, tk.Title, agent)
	default:
		return
	}

	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
	})
	if err != nil {
		logs.CtxWarn(ctx, "[notify:telegram] send for task %d: %v", tk.ID, err)
	}
}

// FromConfig builds the configured notifier, falling back to a no-op when
// the telegram side-channel is disabled or misconfigured.
func FromConfig(cfg config.NotifyConfig) task.Notifier {
	if !cfg.Telegram.Enabled || cfg.Telegram.Token == "" {
		return task.NopNotifier{}
	}
	tg, err := NewTelegram(cfg.Telegram)
	if err != nil {
		logs.Warn("[notify:telegram] disabled: %v", err)
		return task.NopNotifier{}
	}
	return tg
}
