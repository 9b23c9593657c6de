// Package transcode brings oversized videos under the inline transfer
// ceiling through a ladder of progressively lossier ffmpeg passes.
package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"eclipse/internal/config"
	"eclipse/internal/fileutil"
	"eclipse/internal/logging"
	"eclipse/internal/media"
	"eclipse/internal/services"
)

// tier is one rung of the ladder: a name for logging plus an argument
// builder. Tiers run in order; the first output under the ceiling wins.
type tier struct {
	name string
	args func(cfg *config.Config, input, output string) []string
}

func remuxArgs(cfg *config.Config, input, output string) []string {
	return []string{
		"-y", "-i", input,
		"-c", "copy",
		"-movflags", "+faststart",
		output,
	}
}

func reencodeArgs(cfg *config.Config, input, output string) []string {
	return []string{
		"-y", "-i", input,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(cfg.Transcode.ReencodeCRF),
		"-preset", "fast",
		"-c:a", "copy",
		"-movflags", "+faststart",
		output,
	}
}

func downscaleArgs(cfg *config.Config, input, output string) []string {
	return []string{
		"-y", "-i", input,
		"-vf", fmt.Sprintf("scale=-2:'min(%d,ih)'", cfg.Transcode.MaxHeight),
		"-c:v", "libx264",
		"-crf", strconv.Itoa(cfg.Transcode.DownscaleCRF),
		"-preset", "fast",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", cfg.Transcode.AudioBitrateKbps),
		"-movflags", "+faststart",
		output,
	}
}

var tiers = []tier{
	{name: "remux", args: remuxArgs},
	{name: "reencode", args: reencodeArgs},
	{name: "downscale", args: downscaleArgs},
}

// Transcoder runs the size-fit ladder over individual assets.
type Transcoder struct {
	cfg    *config.Config
	logger *slog.Logger

	// run invokes ffmpeg with the built argument list. Swapped in tests.
	run func(ctx context.Context, args []string) error
}

// New builds a Transcoder over the configured ffmpeg binary.
func New(cfg *config.Config, logger *slog.Logger) *Transcoder {
	t := &Transcoder{
		cfg:    cfg,
		logger: logging.WithComponent(logger, "transcode"),
	}
	t.run = t.runFFmpeg
	return t
}

// Preflight verifies the ffmpeg binary is resolvable. Called once at startup
// so a missing tool surfaces before the first job needs it.
func (t *Transcoder) Preflight() error {
	if _, err := exec.LookPath(t.cfg.Transcode.FFmpegBinary); err != nil {
		return services.Wrap(services.ErrExternalTool, "transcode", "preflight",
			fmt.Sprintf("ffmpeg binary %q not found", t.cfg.Transcode.FFmpegBinary), err)
	}
	return nil
}

// Fit decides the delivery route for one asset and, for oversized videos,
// walks the tier ladder until the file fits under the inline ceiling. The
// asset is updated in place. Ladder exhaustion routes the asset to document
// delivery when it fits that ceiling, otherwise marks it rejected; neither
// outcome is an error.
func (t *Transcoder) Fit(ctx context.Context, asset *media.Asset) error {
	inline := t.cfg.InlineCeilingBytes()
	document := t.cfg.DocumentCeilingBytes()

	if asset.ByteSize <= inline {
		asset.Delivery = media.DeliveryInline
		return nil
	}
	if asset.Kind != media.KindVideo {
		// Oversized photos are not transcoded; route by raw size.
		asset.Delivery = routeBySize(asset.ByteSize, document)
		return nil
	}

	log := t.logger.With(logging.Int("ordinal", asset.Ordinal), logging.Int64("input_bytes", asset.ByteSize))
	for _, step := range tiers {
		size, err := t.runTier(ctx, step, asset.LocalPath)
		if err != nil {
			log.Warn("transcode tier failed", logging.String("tier", step.name), logging.Error(err))
			continue
		}
		if size > inline {
			log.Debug("transcode tier output still oversized",
				logging.String("tier", step.name), logging.Int64("output_bytes", size))
			continue
		}
		if err := t.adoptOutput(asset, tierOutputPath(asset.LocalPath, step.name)); err != nil {
			return err
		}
		asset.ByteSize = size
		asset.Delivery = media.DeliveryInline
		asset.Compressed = true
		log.Info("transcode tier succeeded",
			logging.String("tier", step.name), logging.Int64("output_bytes", size))
		return nil
	}

	asset.Delivery = routeBySize(asset.ByteSize, document)
	log.Info("transcode ladder exhausted", logging.String("delivery", string(asset.Delivery)))
	return nil
}

// runTier executes one ladder step and returns the output size. A failed or
// oversized output file is removed before the next tier runs.
func (t *Transcoder) runTier(ctx context.Context, step tier, input string) (int64, error) {
	output := tierOutputPath(input, step.name)
	tierCtx, cancel := context.WithTimeout(ctx, time.Duration(t.cfg.Transcode.TierTimeout)*time.Second)
	defer cancel()

	if err := t.run(tierCtx, step.args(t.cfg, input, output)); err != nil {
		_ = fileutil.RemoveQuiet(output)
		if tierCtx.Err() != nil {
			return 0, services.Wrap(services.ErrTimeout, "transcode", step.name, "tier timed out", err)
		}
		return 0, services.Wrap(services.ErrExternalTool, "transcode", step.name, "ffmpeg failed", err)
	}

	size, err := fileutil.FileSize(output)
	if err != nil {
		_ = fileutil.RemoveQuiet(output)
		return 0, services.Wrap(services.ErrExternalTool, "transcode", step.name, "tier produced no output", err)
	}
	if size > t.cfg.InlineCeilingBytes() {
		_ = fileutil.RemoveQuiet(output)
	}
	return size, nil
}

// adoptOutput replaces the original file with the tier output under the
// original path, so the asset keeps a stable location in scratch.
func (t *Transcoder) adoptOutput(asset *media.Asset, output string) error {
	if err := os.Remove(asset.LocalPath); err != nil {
		return fmt.Errorf("remove original: %w", err)
	}
	if err := fileutil.MoveFile(output, asset.LocalPath); err != nil {
		return fmt.Errorf("adopt tier output: %w", err)
	}
	return nil
}

func (t *Transcoder) runFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, t.cfg.Transcode.FFmpegBinary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		tail := stderr.String()
		if len(tail) > 512 {
			tail = tail[len(tail)-512:]
		}
		return fmt.Errorf("ffmpeg: %w (%s)", err, strings.TrimSpace(tail))
	}
	return nil
}

func routeBySize(size, documentCeiling int64) media.Delivery {
	if size <= documentCeiling {
		return media.DeliveryDocument
	}
	return media.DeliveryRejected
}

func tierOutputPath(input, tierName string) string {
	return input + "." + tierName + ".mp4"
}
