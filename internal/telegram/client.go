// Package telegram implements the Bot API transport and the delivery
// batcher that turns a job's assets into chat messages.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"eclipse/internal/config"
	"eclipse/internal/logging"
	"eclipse/internal/services"
)

// Client is a minimal Bot API client covering the calls the bot needs.
type Client struct {
	cfg    *config.Config
	client *http.Client
	logger *slog.Logger
}

// NewClient builds a Client for the configured bot token and API base.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		cfg: cfg,
		// Long polls and large uploads both exceed any sane default;
		// per-call contexts bound the real deadlines.
		client: &http.Client{},
		logger: logging.WithComponent(logger, "telegram"),
	}
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.cfg.Telegram.APIBase, c.cfg.Telegram.Token, method)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Result      json.RawMessage `json:"result"`
}

// Chat identifies a conversation.
type Chat struct {
	ID int64 `json:"id"`
}

// User identifies a Telegram account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Message is an incoming or sent chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from"`
}

// Update is one long-poll event.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// GetUpdates long-polls for new updates past offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	poll := c.cfg.Telegram.PollTimeout
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(poll+10)*time.Second)
	defer cancel()

	var updates []Update
	err := c.call(callCtx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         poll,
		"allowed_updates": []string{"message"},
	}, &updates)
	return updates, err
}

// SendMessage posts plain text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (Message, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	}, &msg)
	return msg, err
}

// EditMessageText rewrites a previously sent message.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return c.call(ctx, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}, nil)
}

// DeleteMessage removes a previously sent message.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// call posts a JSON-bodied method and decodes the result envelope.
func (c *Client) call(ctx context.Context, method string, params map[string]any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransferFailed, "telegram", method, "api request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeEnvelope(resp.Body, method, out)
}

func decodeEnvelope(r io.Reader, method string, out any) error {
	var envelope apiResponse
	if err := json.NewDecoder(io.LimitReader(r, 4<<20)).Decode(&envelope); err != nil {
		return services.Wrap(services.ErrTransferFailed, "telegram", method, "decode api response", err)
	}
	if !envelope.OK {
		marker := services.ErrTransferFailed
		if envelope.ErrorCode == http.StatusTooManyRequests {
			marker = services.ErrRateLimited
		}
		return services.Wrap(marker, "telegram", method,
			fmt.Sprintf("api error %d: %s", envelope.ErrorCode, envelope.Description), nil)
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return services.Wrap(services.ErrTransferFailed, "telegram", method, "decode api result", err)
		}
	}
	return nil
}

// upload posts one method as streamed multipart form data. Files named in
// files are opened immediately before the request and closed on all paths.
func (c *Client) upload(ctx context.Context, method string, fields map[string]string, files map[string]string, out any) error {
	sendCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Telegram.SendTimeout)*time.Second)
	defer cancel()

	handles := make(map[string]*os.File, len(files))
	for field, path := range files {
		f, err := os.Open(path)
		if err != nil {
			for _, open := range handles {
				_ = open.Close()
			}
			return services.Wrap(services.ErrTransferFailed, "telegram", method, "open upload file", err)
		}
		handles[field] = f
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		defer func() {
			for _, f := range handles {
				_ = f.Close()
			}
		}()
		var err error
		defer func() { _ = pw.CloseWithError(err) }()

		for key, value := range fields {
			if err = form.WriteField(key, value); err != nil {
				return
			}
		}
		for field, f := range handles {
			var part io.Writer
			part, err = form.CreateFormFile(field, filepath.Base(f.Name()))
			if err != nil {
				return
			}
			if _, err = io.Copy(part, f); err != nil {
				return
			}
		}
		err = form.Close()
	}()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, c.methodURL(method), pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		if sendCtx.Err() != nil {
			return services.Wrap(services.ErrTimeout, "telegram", method, "upload timed out", err)
		}
		return services.Wrap(services.ErrTransferFailed, "telegram", method, "upload failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeEnvelope(resp.Body, method, out)
}

// SendPhoto uploads a single photo with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, path, caption string) error {
	fields := map[string]string{"chat_id": strconv.FormatInt(chatID, 10)}
	if caption != "" {
		fields["caption"] = caption
	}
	return c.upload(ctx, "sendPhoto", fields, map[string]string{"photo": path}, nil)
}

// SendVideo uploads a single video with the streaming hint set.
func (c *Client) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	fields := map[string]string{
		"chat_id":            strconv.FormatInt(chatID, 10),
		"supports_streaming": "true",
	}
	if caption != "" {
		fields["caption"] = caption
	}
	return c.upload(ctx, "sendVideo", fields, map[string]string{"video": path}, nil)
}

// SendDocument uploads a file as a generic document.
func (c *Client) SendDocument(ctx context.Context, chatID int64, path, caption string) error {
	fields := map[string]string{"chat_id": strconv.FormatInt(chatID, 10)}
	if caption != "" {
		fields["caption"] = caption
	}
	return c.upload(ctx, "sendDocument", fields, map[string]string{"document": path}, nil)
}

// GroupItem is one entry of a media group upload.
type GroupItem struct {
	Path    string
	Type    string // "photo" or "video"
	Caption string
}

// SendMediaGroup uploads up to ten items as one grouped message using the
// attach:// scheme for the file parts.
func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, items []GroupItem) error {
	type inputMedia struct {
		Type              string `json:"type"`
		Media             string `json:"media"`
		Caption           string `json:"caption,omitempty"`
		SupportsStreaming bool   `json:"supports_streaming,omitempty"`
	}

	descriptors := make([]inputMedia, 0, len(items))
	files := make(map[string]string, len(items))
	for i, item := range items {
		attach := fmt.Sprintf("file%d", i)
		files[attach] = item.Path
		descriptors = append(descriptors, inputMedia{
			Type:              item.Type,
			Media:             "attach://" + attach,
			Caption:           item.Caption,
			SupportsStreaming: item.Type == "video",
		})
	}

	mediaJSON, err := json.Marshal(descriptors)
	if err != nil {
		return fmt.Errorf("encode media group: %w", err)
	}
	fields := map[string]string{
		"chat_id": strconv.FormatInt(chatID, 10),
		"media":   string(mediaJSON),
	}
	return c.upload(ctx, "sendMediaGroup", fields, files, nil)
}

