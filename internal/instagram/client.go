// Package instagram fetches post metadata and media assets from the
// Instagram web API and downloads them into a job's scratch directory.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eclipse/internal/config"
	"eclipse/internal/logging"
	"eclipse/internal/media"
	"eclipse/internal/services"
	"eclipse/internal/session"
)

// Client talks to the Instagram web API using an acquired session.
type Client struct {
	cfg      *config.Config
	sessions *session.Provider
	client   *http.Client
	logger   *slog.Logger
}

// NewClient builds a Client over the configured API base and session provider.
func NewClient(cfg *config.Config, sessions *session.Provider, logger *slog.Logger) *Client {
	return &Client{
		cfg:      cfg,
		sessions: sessions,
		client:   &http.Client{},
		logger:   logging.WithComponent(logger, "instagram"),
	}
}

// Result is the fetch stage's output: downloaded assets plus the post's
// caption text, when the source declares one.
type Result struct {
	Assets  []media.Asset
	Caption string
}

// Fetch dispatches on the reference kind and downloads every declared asset
// into destDir. A partial carousel comes back with the surviving assets and
// an ErrPartialFetch-tagged error.
func (c *Client) Fetch(ctx context.Context, ref media.PostRef, destDir string) (Result, error) {
	switch ref.Kind {
	case media.RefPost:
		return c.fetchPost(ctx, ref, destDir)
	case media.RefStory:
		return c.fetchStory(ctx, ref, destDir)
	case media.RefHighlight:
		return c.fetchHighlight(ctx, ref, destDir)
	default:
		return Result{}, services.Wrap(services.ErrLinkNotRecognized, "instagram", "fetch", "unknown reference kind", nil)
	}
}

func (c *Client) fetchPost(ctx context.Context, ref media.PostRef, destDir string) (Result, error) {
	var resp postResponse
	endpoint := fmt.Sprintf("%s/p/%s/?__a=1&__d=dis", c.cfg.Instagram.APIBase, url.PathEscape(ref.PrimaryID))
	if err := c.getJSON(ctx, endpoint, "lookup-post", &resp); err != nil {
		return Result{}, err
	}
	if len(resp.Items) == 0 {
		return Result{}, services.Wrap(services.ErrNotFound, "instagram", "lookup-post", "post has no items", nil)
	}

	item := resp.Items[0]
	caption := ""
	if item.Caption != nil {
		caption = item.Caption.Text
	}

	// A post is a single photo, a single video, or a carousel; the link
	// shape alone cannot tell them apart, only the metadata can.
	var plan []downloadPlan
	if item.MediaType == mediaTypeCarousel {
		for _, child := range item.CarouselMedia {
			p, err := planItem(child)
			if err != nil {
				return Result{}, err
			}
			plan = append(plan, p)
		}
	} else {
		p, err := planItem(item)
		if err != nil {
			return Result{}, err
		}
		plan = append(plan, p)
	}

	assets, err := c.download(ctx, plan, destDir)
	return Result{Assets: assets, Caption: caption}, err
}

func (c *Client) fetchStory(ctx context.Context, ref media.PostRef, destDir string) (Result, error) {
	userID, err := c.lookupUserID(ctx, ref.PrimaryID)
	if err != nil {
		return Result{}, err
	}

	var resp storyResponse
	endpoint := fmt.Sprintf("%s/api/v1/feed/user/%s/story/", c.cfg.Instagram.APIBase, url.PathEscape(userID))
	if err := c.getJSON(ctx, endpoint, "lookup-story", &resp); err != nil {
		return Result{}, err
	}
	if resp.Reel == nil || len(resp.Reel.Items) == 0 {
		return Result{}, services.Wrap(services.ErrNoContent, "instagram", "lookup-story", "no active story items", nil)
	}

	item, err := pickStoryItem(resp.Reel.Items, ref.SecondaryID)
	if err != nil {
		return Result{}, err
	}
	p, err := planItem(item)
	if err != nil {
		return Result{}, err
	}
	assets, err := c.download(ctx, []downloadPlan{p}, destDir)
	return Result{Assets: assets}, err
}

func (c *Client) fetchHighlight(ctx context.Context, ref media.PostRef, destDir string) (Result, error) {
	var resp highlightResponse
	endpoint := fmt.Sprintf("%s/api/v1/feed/reels_media/?reel_ids=highlight:%s",
		c.cfg.Instagram.APIBase, url.QueryEscape(ref.PrimaryID))
	if err := c.getJSON(ctx, endpoint, "lookup-highlight", &resp); err != nil {
		return Result{}, err
	}
	if len(resp.ReelsMedia) == 0 || len(resp.ReelsMedia[0].Items) == 0 {
		return Result{}, services.Wrap(services.ErrNotFound, "instagram", "lookup-highlight", "highlight reel not found", nil)
	}

	var plan []downloadPlan
	for _, item := range resp.ReelsMedia[0].Items {
		p, err := planItem(item)
		if err != nil {
			return Result{}, err
		}
		plan = append(plan, p)
	}
	assets, err := c.download(ctx, plan, destDir)
	return Result{Assets: assets}, err
}

func (c *Client) lookupUserID(ctx context.Context, username string) (string, error) {
	var resp profileResponse
	endpoint := fmt.Sprintf("%s/api/v1/users/web_profile_info/?username=%s",
		c.cfg.Instagram.APIBase, url.QueryEscape(username))
	if err := c.getJSON(ctx, endpoint, "lookup-user", &resp); err != nil {
		return "", err
	}
	if resp.Data.User.ID == "" {
		return "", services.Wrap(services.ErrNotFound, "instagram", "lookup-user", "user not found", nil)
	}
	return resp.Data.User.ID, nil
}

// pickStoryItem locates the requested item by id, or the most recent one
// when the link named only the owner. An id that is no longer in the active
// reel reads as gone, not as "take another".
func pickStoryItem(items []apiItem, secondaryID string) (apiItem, error) {
	if secondaryID == "" {
		return items[len(items)-1], nil
	}
	for _, item := range items {
		if item.ID == secondaryID || fmt.Sprintf("%d", item.PK) == secondaryID ||
			strings.HasPrefix(item.ID, secondaryID+"_") {
			return item, nil
		}
	}
	return apiItem{}, services.Wrap(services.ErrNotFound, "instagram", "lookup-story", "story item expired or missing", nil)
}

func (c *Client) getJSON(ctx context.Context, endpoint, operation string, out any) error {
	lookupCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Fetch.LookupTimeout)*time.Second)
	defer cancel()

	sc, err := c.sessions.Acquire(lookupCtx)
	if err != nil {
		return services.Wrap(services.ErrAuthRequired, "instagram", operation, "no session available", err)
	}

	req, err := http.NewRequestWithContext(lookupCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	sc.Apply(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if lookupCtx.Err() != nil {
			return services.Wrap(services.ErrTimeout, "instagram", operation, "metadata lookup timed out", err)
		}
		return services.Wrap(services.ErrTransient, "instagram", operation, "metadata lookup failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "instagram", operation, "read metadata response", err)
	}

	if err := classifyResponse(resp, body, operation); err != nil {
		c.noteAuthFailure(sc, err)
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		// HTML instead of JSON means the API bounced us to the login page.
		if looksLikeHTML(body) {
			werr := services.Wrap(services.ErrAuthRequired, "instagram", operation, "login wall returned instead of metadata", nil)
			c.noteAuthFailure(sc, werr)
			return werr
		}
		return services.Wrap(services.ErrTransient, "instagram", operation, "decode metadata response", err)
	}
	return nil
}

// noteAuthFailure drops the memoized session when the API stops honoring it,
// so the next acquisition re-walks the tier chain.
func (c *Client) noteAuthFailure(sc *session.Context, err error) {
	if !errors.Is(err, services.ErrAuthRequired) || sc.Anonymous() {
		return
	}
	c.logger.Warn("session rejected by source, invalidating", logging.Error(err))
	c.sessions.Invalidate()
}

func classifyResponse(resp *http.Response, body []byte, operation string) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "instagram", operation, "content not found", nil)
	case resp.StatusCode == http.StatusTooManyRequests ||
		strings.Contains(strings.ToLower(apiErr.Message), "wait a few minutes"):
		return services.Wrap(services.ErrRateLimited, "instagram", operation, "rate limited by source", nil)
	case apiErr.Message == "login_required" || apiErr.RequireLogin:
		return services.Wrap(services.ErrAuthRequired, "instagram", operation, "login required", nil)
	case apiErr.CheckpointURL != "":
		return services.Wrap(services.ErrAuthRequired, "instagram", operation, "account checkpoint required", nil)
	case resp.StatusCode == http.StatusUnauthorized:
		return services.Wrap(services.ErrAuthRequired, "instagram", operation, "unauthorized", nil)
	case resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrPrivate, "instagram", operation, "content is private", nil)
	case resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, "instagram", operation,
			fmt.Sprintf("source returned status %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return services.Wrap(services.ErrTransient, "instagram", operation,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	return nil
}

func looksLikeHTML(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "<!DOCTYPE") || strings.HasPrefix(trimmed, "<html")
}
