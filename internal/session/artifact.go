package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const artifactLockRetry = 100 * time.Millisecond

// The artifact is a small JSON file holding the last working session. A
// sibling lock file serializes concurrent readers and writers; a second
// process may be acquiring at the same time.

func (p *Provider) artifactPath() string {
	return p.cfg.Instagram.SessionFile
}

func (p *Provider) fromArtifact(ctx context.Context) (*Context, error) {
	path := p.artifactPath()
	if path == "" {
		return nil, errors.New("no session file configured")
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryRLockContext(ctx, artifactLockRetry)
	if err != nil || !locked {
		return nil, fmt.Errorf("lock session artifact: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session artifact: %w", err)
	}

	var sc Context
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse session artifact: %w", err)
	}
	if len(sc.Cookies) == 0 {
		return nil, errors.New("session artifact holds no cookies")
	}
	// An artifact left behind by a different account must not satisfy the
	// configured identity.
	if want := p.cfg.Instagram.Username; want != "" && sc.Username != "" && !strings.EqualFold(sc.Username, want) {
		return nil, fmt.Errorf("session artifact belongs to %q, configured account is %q", sc.Username, want)
	}
	return &sc, nil
}

// discardArtifact removes a session artifact the API no longer honors so the
// next run does not reload and re-fail it.
func (p *Provider) discardArtifact() error {
	path := p.artifactPath()
	if path == "" {
		return nil
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(context.Background(), artifactLockRetry)
	if err != nil || !locked {
		return fmt.Errorf("lock session artifact: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session artifact: %w", err)
	}
	return nil
}

func (p *Provider) saveArtifact(sc *Context) error {
	path := p.artifactPath()
	if path == "" || sc == nil || sc.Anonymous() {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(context.Background(), artifactLockRetry)
	if err != nil || !locked {
		return fmt.Errorf("lock session artifact: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace session artifact: %w", err)
	}
	return nil
}
