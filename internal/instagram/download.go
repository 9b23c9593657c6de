package instagram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"eclipse/internal/logging"
	"eclipse/internal/media"
	"eclipse/internal/services"
)

// downloadPlan is one asset the metadata stage decided to fetch.
type downloadPlan struct {
	Kind media.Kind
	URL  string
}

func planItem(item apiItem) (downloadPlan, error) {
	switch item.MediaType {
	case mediaTypeVideo:
		if len(item.VideoVersions) == 0 || item.VideoVersions[0].URL == "" {
			return downloadPlan{}, services.Wrap(services.ErrNoContent, "instagram", "plan", "video item carries no source url", nil)
		}
		return downloadPlan{Kind: media.KindVideo, URL: item.VideoVersions[0].URL}, nil
	case mediaTypePhoto:
		if len(item.ImageVersions.Candidates) == 0 || item.ImageVersions.Candidates[0].URL == "" {
			return downloadPlan{}, services.Wrap(services.ErrNoContent, "instagram", "plan", "photo item carries no source url", nil)
		}
		return downloadPlan{Kind: media.KindPhoto, URL: item.ImageVersions.Candidates[0].URL}, nil
	default:
		return downloadPlan{}, services.Wrap(services.ErrNoContent, "instagram", "plan",
			fmt.Sprintf("unsupported media type %d", item.MediaType), nil)
	}
}

// download fetches every planned asset into destDir. Ordinals follow the
// plan's enumeration order no matter which transfer finishes first. Failed
// items are excluded and reported as a partial fetch unless nothing
// survives, or the plan held a single item.
func (c *Client) download(ctx context.Context, plan []downloadPlan, destDir string) ([]media.Asset, error) {
	if len(plan) == 0 {
		return nil, services.Wrap(services.ErrNoContent, "instagram", "download", "nothing to download", nil)
	}

	parallelism := c.cfg.Fetch.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > 4 {
		parallelism = 4
	}

	type slot struct {
		asset media.Asset
		err   error
	}
	results := make([]slot, len(plan))
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for ordinal, item := range plan {
		wg.Add(1)
		go func(ordinal int, item downloadPlan) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			asset, err := c.downloadOne(ctx, ordinal, item, destDir)
			results[ordinal] = slot{asset: asset, err: err}
		}(ordinal, item)
	}
	wg.Wait()

	var (
		assets []media.Asset
		failed int
	)
	for ordinal, res := range results {
		if res.err != nil {
			failed++
			c.logger.Warn("asset download failed",
				logging.Int("ordinal", ordinal),
				logging.Error(res.err))
			continue
		}
		assets = append(assets, res.asset)
	}

	if len(assets) == 0 {
		// A lone item's failure speaks for itself; only a wholly failed
		// multi-item plan collapses to "nothing survived".
		if len(plan) == 1 {
			return nil, results[0].err
		}
		return nil, services.Wrap(services.ErrNoContent, "instagram", "download", "every asset download failed", results[0].err)
	}
	if failed > 0 {
		media.Renumber(assets)
		return assets, services.Wrap(services.ErrPartialFetch, "instagram", "download",
			fmt.Sprintf("%d of %d assets failed", failed, len(plan)), nil)
	}
	return assets, nil
}

func (c *Client) downloadOne(ctx context.Context, ordinal int, item downloadPlan, destDir string) (media.Asset, error) {
	itemCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Fetch.ItemTimeout)*time.Second)
	defer cancel()

	sc, err := c.sessions.Acquire(itemCtx)
	if err != nil {
		return media.Asset{}, services.Wrap(services.ErrAuthRequired, "instagram", "download", "no session available", err)
	}

	req, err := http.NewRequestWithContext(itemCtx, http.MethodGet, item.URL, nil)
	if err != nil {
		return media.Asset{}, fmt.Errorf("build download request: %w", err)
	}
	if sc.UserAgent != "" {
		req.Header.Set("User-Agent", sc.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if itemCtx.Err() != nil {
			return media.Asset{}, services.Wrap(services.ErrTimeout, "instagram", "download", "asset download timed out", err)
		}
		return media.Asset{}, services.Wrap(services.ErrTransient, "instagram", "download", "asset request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return media.Asset{}, services.Wrap(services.ErrTransient, "instagram", "download",
			fmt.Sprintf("asset fetch returned status %d", resp.StatusCode), nil)
	}

	path := filepath.Join(destDir, fmt.Sprintf("%03d%s", ordinal, item.Kind.Ext()))
	out, err := os.Create(path)
	if err != nil {
		return media.Asset{}, fmt.Errorf("create asset file: %w", err)
	}

	buf := make([]byte, c.cfg.Fetch.ChunkKiB*1024)
	written, copyErr := io.CopyBuffer(out, resp.Body, buf)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if itemCtx.Err() != nil {
			return media.Asset{}, services.Wrap(services.ErrTimeout, "instagram", "download", "asset download timed out", copyErr)
		}
		if copyErr == nil {
			copyErr = closeErr
		}
		return media.Asset{}, services.Wrap(services.ErrTransient, "instagram", "download", "asset stream interrupted", copyErr)
	}

	return media.Asset{
		Ordinal:   ordinal,
		Kind:      item.Kind,
		SourceURL: item.URL,
		LocalPath: path,
		ByteSize:  written,
	}, nil
}
