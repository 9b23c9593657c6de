// Package bot runs the Telegram long-poll loop and routes incoming text to
// the workflow manager.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"eclipse/internal/config"
	"eclipse/internal/logging"
	"eclipse/internal/telegram"
	"eclipse/internal/workflow"
)

const welcomeText = "Hi! Send me an Instagram link — a post, reel, story, or highlight — and I'll fetch the media and send it back here."

// submitter is the slice of the workflow manager the bot needs.
type submitter interface {
	Submit(ctx context.Context, req workflow.Request, reporter workflow.Reporter) error
}

// Bot polls for updates and dispatches one job per incoming link.
type Bot struct {
	cfg     *config.Config
	client  *telegram.Client
	manager submitter
	logger  *slog.Logger

	wg sync.WaitGroup
}

// New builds the chat shell over a transport client and workflow manager.
func New(cfg *config.Config, client *telegram.Client, manager *workflow.Manager, logger *slog.Logger) *Bot {
	return &Bot{
		cfg:     cfg,
		client:  client,
		manager: manager,
		logger:  logging.WithComponent(logger, "bot"),
	}
}

// Run long-polls until the context is canceled, then waits for in-flight
// jobs to finish.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot started")
	var offset int64
	for {
		select {
		case <-ctx.Done():
			b.wg.Wait()
			b.logger.Info("bot stopped")
			return ctx.Err()
		default:
		}

		updates, err := b.client.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			b.logger.Warn("poll failed", logging.Error(err))
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.handle(ctx, update.Message)
		}
	}
}

func (b *Bot) handle(ctx context.Context, msg *telegram.Message) {
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/start") {
		if _, err := b.client.SendMessage(ctx, msg.Chat.ID, welcomeText); err != nil {
			b.logger.Warn("welcome not sent", logging.Error(err))
		}
		return
	}

	requesterID := msg.Chat.ID
	if msg.From != nil {
		requesterID = msg.From.ID
	}
	req := workflow.Request{RequesterID: requesterID, ChatID: msg.Chat.ID, Link: text}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		reporter := newChatReporter(ctx, b.client, msg.Chat.ID, b.logger)
		// Submit reports every failure through the reporter; the returned
		// error is for logging only.
		if err := b.manager.Submit(ctx, req, reporter); err != nil {
			b.logger.Warn("job rejected or failed", logging.Int64(logging.FieldRequester, requesterID), logging.Error(err))
		}
	}()
}
