// Package workflow governs job execution: per-requester single flight,
// global admission, stage sequencing, persistence of lifecycle transitions,
// and guaranteed scratch cleanup on every exit path.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"eclipse/internal/config"
	"eclipse/internal/instagram"
	"eclipse/internal/logging"
	"eclipse/internal/media"
	"eclipse/internal/services"
	"eclipse/internal/store"
	"eclipse/internal/telegram"
)

// Resolver turns raw link text into a typed post reference.
type Resolver interface {
	Resolve(raw string) (media.PostRef, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(raw string) (media.PostRef, error)

func (f ResolverFunc) Resolve(raw string) (media.PostRef, error) { return f(raw) }

// Fetcher downloads every asset a reference names into a scratch directory.
type Fetcher interface {
	Fetch(ctx context.Context, ref media.PostRef, destDir string) (instagram.Result, error)
}

// Fitter routes one asset to a delivery class, transcoding oversized videos.
type Fitter interface {
	Fit(ctx context.Context, asset *media.Asset) error
}

// Deliverer transmits the surviving assets to the requesting chat.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, assets []media.Asset, caption string) (telegram.Report, error)
}

// Reporter receives user-facing progress for one job.
type Reporter interface {
	Progress(text string)
	Completed(report telegram.Report)
	Failed(message string)
}

// Request is one delivery job submission.
type Request struct {
	RequesterID int64
	ChatID      int64
	Link        string
}

// Manager runs jobs under the concurrency policy: one in-flight job per
// requester, a small global cap across requesters.
type Manager struct {
	cfg       *config.Config
	store     *store.Store
	logger    *slog.Logger
	resolver  Resolver
	fetcher   Fetcher
	fitter    Fitter
	deliverer Deliverer

	slots chan struct{}

	mu     sync.Mutex
	active map[int64]struct{}
}

// NewManager wires the pipeline stages under the configured limits.
func NewManager(cfg *config.Config, st *store.Store, logger *slog.Logger,
	resolver Resolver, fetcher Fetcher, fitter Fitter, deliverer Deliverer) *Manager {
	maxConcurrent := cfg.Workflow.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Manager{
		cfg:       cfg,
		store:     st,
		logger:    logging.WithComponent(logger, "workflow"),
		resolver:  resolver,
		fetcher:   fetcher,
		fitter:    fitter,
		deliverer: deliverer,
		slots:     make(chan struct{}, maxConcurrent),
		active:    make(map[int64]struct{}),
	}
}

// Submit runs one job to completion. A requester with a job already in
// flight is rejected immediately with ErrBusy; admission past the global cap
// blocks instead. The call is synchronous; callers run it on their own
// goroutine.
func (m *Manager) Submit(ctx context.Context, req Request, reporter Reporter) error {
	m.mu.Lock()
	if _, busy := m.active[req.RequesterID]; busy {
		m.mu.Unlock()
		err := services.Wrap(services.ErrBusy, "workflow", "submit", "requester already has a job in flight", nil)
		reporter.Failed(services.UserMessage(err))
		return err
	}
	m.active[req.RequesterID] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.active, req.RequesterID)
		m.mu.Unlock()
	}()

	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.slots }()

	jobID := uuid.NewString()
	log := logging.WithJob(m.logger, jobID, req.RequesterID)

	if _, err := m.store.CreateJob(ctx, jobID, req.RequesterID, req.Link); err != nil {
		err = fmt.Errorf("create job: %w", err)
		log.Error("job not recorded", logging.Error(err))
		reporter.Failed(services.UserMessage(err))
		return err
	}

	scratch := filepath.Join(m.cfg.Paths.StagingDir, "job-"+jobID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		m.finishFailed(jobID, reporter, log, fmt.Errorf("create scratch: %w", err))
		return fmt.Errorf("create scratch: %w", err)
	}

	var runErr error
	func() {
		// Scratch removal and panic conversion share one deferred frame so
		// a panic anywhere in the pipeline still cleans up and lands the
		// job in a terminal state.
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("job panicked: %v", r)
				log.Error("job panicked", logging.Any("panic", r))
			}
			if err := os.RemoveAll(scratch); err != nil {
				log.Warn("scratch cleanup failed", logging.Error(err))
			}
		}()
		runErr = m.run(ctx, jobID, req, scratch, reporter, log)
	}()

	if runErr != nil {
		m.finishFailed(jobID, reporter, log, runErr)
		return runErr
	}
	return nil
}

// run executes the pipeline stages for an admitted job.
func (m *Manager) run(ctx context.Context, jobID string, req Request, scratch string, reporter Reporter, log *slog.Logger) error {
	if err := m.transition(ctx, jobID, store.StatusResolving, log); err != nil {
		return err
	}
	reporter.Progress("Resolving link...")
	ref, err := m.resolver.Resolve(req.Link)
	if err != nil {
		return err
	}
	if err := m.store.SetKind(ctx, jobID, string(ref.Kind)); err != nil {
		log.Warn("job kind not recorded", logging.Error(err))
	}

	if err := m.transition(ctx, jobID, store.StatusFetching, log); err != nil {
		return err
	}
	reporter.Progress("Fetching media...")
	result, err := m.fetcher.Fetch(ctx, ref, scratch)
	if err != nil {
		// A partial carousel still delivers what survived.
		if !errors.Is(err, services.ErrPartialFetch) {
			return err
		}
		log.Warn("partial fetch", logging.Error(err))
		reporter.Progress("Some items could not be fetched; sending the rest...")
	}
	if err := m.store.SetAssetCount(ctx, jobID, len(result.Assets)); err != nil {
		log.Warn("asset count not recorded", logging.Error(err))
	}

	if needsTranscode(result.Assets, m.cfg.InlineCeilingBytes()) {
		if err := m.transition(ctx, jobID, store.StatusTranscoding, log); err != nil {
			return err
		}
		reporter.Progress("Compressing oversized video...")
	}
	for i := range result.Assets {
		if err := m.fitter.Fit(ctx, &result.Assets[i]); err != nil {
			// A fit failure claims only its own asset.
			log.Warn("asset fit failed", logging.Int("ordinal", result.Assets[i].Ordinal), logging.Error(err))
			result.Assets[i].Delivery = media.DeliveryRejected
		}
	}

	if err := m.transition(ctx, jobID, store.StatusDelivering, log); err != nil {
		return err
	}
	reporter.Progress("Sending...")
	report, err := m.deliverer.Deliver(ctx, req.ChatID, result.Assets, result.Caption)
	if err != nil {
		return err
	}

	if err := m.store.FinishJob(ctx, jobID, store.StatusCompleted, "", report.Delivered); err != nil {
		log.Warn("job completion not recorded", logging.Error(err))
	}
	if err := m.store.RecordCompleted(ctx, report.Delivered); err != nil {
		log.Warn("counters not recorded", logging.Error(err))
	}
	log.Info("job completed",
		logging.Int("delivered", report.Delivered),
		logging.Int("dropped", report.Dropped),
		logging.Int("rejected", report.Rejected))
	reporter.Completed(report)
	return nil
}

func (m *Manager) transition(ctx context.Context, jobID string, status store.Status, log *slog.Logger) error {
	if err := m.store.UpdateStatus(ctx, jobID, status); err != nil {
		return fmt.Errorf("persist %s transition: %w", status, err)
	}
	log.Debug("stage transition", logging.String(logging.FieldStage, string(status)))
	return nil
}

func (m *Manager) finishFailed(jobID string, reporter Reporter, log *slog.Logger, cause error) {
	message := services.UserMessage(cause)
	// Terminal bookkeeping must not depend on the (possibly canceled)
	// job context.
	if err := m.store.FinishJob(context.Background(), jobID, store.StatusFailed, message, 0); err != nil {
		log.Warn("job failure not recorded", logging.Error(err))
	}
	log.Error("job failed", logging.Error(cause))
	reporter.Failed(message)
}

func needsTranscode(assets []media.Asset, inlineCeiling int64) bool {
	for _, asset := range assets {
		if asset.Kind == media.KindVideo && asset.ByteSize > inlineCeiling {
			return true
		}
	}
	return false
}
