package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"eclipse/internal/caption"
	"eclipse/internal/config"
	"eclipse/internal/logging"
	"eclipse/internal/media"
	"eclipse/internal/services"
)

// Batcher turns a job's fetched assets into one delivery: a typed single
// send, or a media group capped at the platform group limit.
type Batcher struct {
	cfg    *config.Config
	client *Client
	logger *slog.Logger
}

// NewBatcher builds a Batcher over an API client.
func NewBatcher(cfg *config.Config, client *Client, logger *slog.Logger) *Batcher {
	return &Batcher{
		cfg:    cfg,
		client: client,
		logger: logging.WithComponent(logger, "batcher"),
	}
}

// Report summarizes what a delivery actually transmitted.
type Report struct {
	Delivered int
	Dropped   int
	Rejected  int
}

// Deliver sends the assets to chatID. Rejected assets are excluded and
// summarized in the caption; overflow beyond the group limit is dropped and
// counted. When every asset was rejected no send is attempted and the job
// fails. Transfer errors are final; there is no retry.
func (b *Batcher) Deliver(ctx context.Context, chatID int64, assets []media.Asset, rawCaption string) (Report, error) {
	var (
		sendable []media.Asset
		rejected []media.Asset
	)
	for _, asset := range assets {
		if asset.Delivery == media.DeliveryRejected {
			rejected = append(rejected, asset)
			continue
		}
		sendable = append(sendable, asset)
	}

	report := Report{Rejected: len(rejected)}
	if len(sendable) == 0 {
		return report, services.Wrap(services.ErrTranscodeExhausted, "batcher", "deliver",
			"every asset exceeds the transfer ceilings", nil)
	}

	groupLimit := b.cfg.Telegram.MaxGroupSize
	if len(sendable) > groupLimit {
		report.Dropped = len(sendable) - groupLimit
		sendable = sendable[:groupLimit]
	}

	text := b.composeCaption(rawCaption, sendable, rejected, report.Dropped)

	if len(sendable) == 1 {
		if err := b.sendSingle(ctx, chatID, sendable[0], text); err != nil {
			return report, err
		}
		report.Delivered = 1
		return report, nil
	}

	// Document-routed assets cannot ride in a photo/video group; they go
	// out individually after the group.
	var (
		grouped   []media.Asset
		documents []media.Asset
	)
	for _, asset := range sendable {
		if asset.Delivery == media.DeliveryDocument {
			documents = append(documents, asset)
			continue
		}
		grouped = append(grouped, asset)
	}

	if len(grouped) == 1 {
		if err := b.sendSingle(ctx, chatID, grouped[0], text); err != nil {
			return report, err
		}
		report.Delivered++
		text = ""
	} else if len(grouped) > 1 {
		items := make([]GroupItem, 0, len(grouped))
		for i, asset := range grouped {
			item := GroupItem{Path: asset.LocalPath, Type: groupType(asset.Kind)}
			// The platform shows a group caption only on the first entry.
			if i == 0 {
				item.Caption = text
			}
			items = append(items, item)
		}
		if err := b.client.SendMediaGroup(ctx, chatID, items); err != nil {
			return report, err
		}
		report.Delivered += len(grouped)
		text = ""
	}

	for _, asset := range documents {
		if err := b.client.SendDocument(ctx, chatID, asset.LocalPath, text); err != nil {
			return report, err
		}
		report.Delivered++
		text = ""
	}

	b.logger.Info("delivery complete",
		logging.Int("delivered", report.Delivered),
		logging.Int("dropped", report.Dropped),
		logging.Int("rejected", report.Rejected))
	return report, nil
}

func (b *Batcher) sendSingle(ctx context.Context, chatID int64, asset media.Asset, text string) error {
	switch {
	case asset.Delivery == media.DeliveryDocument:
		return b.client.SendDocument(ctx, chatID, asset.LocalPath, text)
	case asset.Kind == media.KindVideo:
		return b.client.SendVideo(ctx, chatID, asset.LocalPath, text)
	default:
		return b.client.SendPhoto(ctx, chatID, asset.LocalPath, text)
	}
}

// composeCaption normalizes the source caption and appends delivery notes
// about compression, drops, and rejections.
func (b *Batcher) composeCaption(rawCaption string, sendable, rejected []media.Asset, dropped int) string {
	var notes []string
	compressed := 0
	for _, asset := range sendable {
		if asset.Compressed {
			compressed++
		}
	}
	if compressed > 0 {
		notes = append(notes, fmt.Sprintf("%d video(s) compressed to fit", compressed))
	}
	if dropped > 0 {
		notes = append(notes, fmt.Sprintf("%d item(s) dropped (album limit is %d)", dropped, b.cfg.Telegram.MaxGroupSize))
	}
	if len(rejected) > 0 {
		var total int64
		for _, asset := range rejected {
			total += asset.ByteSize
		}
		notes = append(notes, fmt.Sprintf("%d item(s) too large to send (%.1f MiB total)",
			len(rejected), float64(total)/(1024*1024)))
	}

	text := caption.Normalize(rawCaption, 0)
	if len(notes) > 0 {
		suffix := strings.Join(notes, "\n")
		if text != "" {
			text += "\n\n" + suffix
		} else {
			text = suffix
		}
	}
	return caption.Truncate(text, caption.Limit)
}

func groupType(kind media.Kind) string {
	if kind == media.KindVideo {
		return "video"
	}
	return "photo"
}
