package bot

import (
	"context"
	"log/slog"

	"eclipse/internal/logging"
	"eclipse/internal/telegram"
)

// chatReporter mirrors job progress into a single status message that is
// edited in place and deleted once the media lands.
type chatReporter struct {
	ctx      context.Context
	client   *telegram.Client
	chatID   int64
	logger   *slog.Logger
	statusID int64
}

func newChatReporter(ctx context.Context, client *telegram.Client, chatID int64, logger *slog.Logger) *chatReporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &chatReporter{ctx: ctx, client: client, chatID: chatID, logger: logger}
}

func (r *chatReporter) Progress(text string) {
	if r.statusID == 0 {
		msg, err := r.client.SendMessage(r.ctx, r.chatID, text)
		if err != nil {
			r.logger.Debug("status message not sent", logging.Error(err))
			return
		}
		r.statusID = msg.MessageID
		return
	}
	if err := r.client.EditMessageText(r.ctx, r.chatID, r.statusID, text); err != nil {
		r.logger.Debug("status message not edited", logging.Error(err))
	}
}

func (r *chatReporter) Completed(report telegram.Report) {
	if r.statusID == 0 {
		return
	}
	// The media speaks for itself; the status line only lingers when the
	// delete fails.
	if err := r.client.DeleteMessage(r.ctx, r.chatID, r.statusID); err != nil {
		r.logger.Debug("status message not deleted", logging.Error(err))
	}
	r.statusID = 0
}

func (r *chatReporter) Failed(message string) {
	if r.statusID == 0 {
		if _, err := r.client.SendMessage(r.ctx, r.chatID, message); err != nil {
			r.logger.Debug("failure message not sent", logging.Error(err))
		}
		return
	}
	if err := r.client.EditMessageText(r.ctx, r.chatID, r.statusID, message); err != nil {
		r.logger.Debug("failure message not edited", logging.Error(err))
	}
	r.statusID = 0
}
