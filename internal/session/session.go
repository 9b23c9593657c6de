// Package session acquires Instagram credentials through a tiered fallback
// chain: a saved session artifact, a fresh username/password login, cookies
// imported from a local Firefox profile, and finally an anonymous session.
// Acquisition never fails outright; the anonymous tier always succeeds and
// simply limits what the fetch stage can reach.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"eclipse/internal/config"
	"eclipse/internal/logging"
)

// Tier identifies which rung of the fallback chain produced a session.
type Tier string

const (
	TierArtifact  Tier = "artifact"
	TierLogin     Tier = "login"
	TierBrowser   Tier = "browser"
	TierAnonymous Tier = "anonymous"
)

// Cookie is a single credential cookie carried by a session.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Context is an acquired session ready to authenticate API requests.
type Context struct {
	Username  string   `json:"username,omitempty"`
	UserAgent string   `json:"user_agent"`
	Cookies   []Cookie `json:"cookies,omitempty"`
	Tier      Tier     `json:"tier"`
}

// Anonymous reports whether the session carries no credentials.
func (c *Context) Anonymous() bool {
	return c == nil || c.Tier == TierAnonymous || len(c.Cookies) == 0
}

// Cookie returns the value of the named cookie, or "".
func (c *Context) Cookie(name string) string {
	if c == nil {
		return ""
	}
	for _, ck := range c.Cookies {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// Apply attaches the session cookies and user agent to an outgoing request.
func (c *Context) Apply(req *http.Request) {
	if c == nil {
		return
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for _, ck := range c.Cookies {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
}

// Provider walks the tier chain once and memoizes the winner for the life of
// the process. Invalidate drops the memo so the next Acquire re-runs the chain.
type Provider struct {
	cfg    *config.Config
	logger *slog.Logger
	client *http.Client

	// verify checks that a candidate session is usable. Swapped in tests.
	verify func(ctx context.Context, sc *Context) error

	mu      sync.Mutex
	current *Context
}

// NewProvider builds a Provider over the configured credential sources.
func NewProvider(cfg *config.Config, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Provider{
		cfg:    cfg,
		logger: logging.WithComponent(logger, "session"),
		client: &http.Client{},
	}
	p.verify = p.verifySession
	return p
}

// Acquire returns a usable session. The chain is walked at most once; later
// calls return the memoized session until Invalidate is called.
func (p *Provider) Acquire(ctx context.Context) (*Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		return p.current, nil
	}

	type tierFn struct {
		tier Tier
		fn   func(context.Context) (*Context, error)
	}
	chain := []tierFn{
		{TierArtifact, p.fromArtifact},
		{TierLogin, p.fromLogin},
		{TierBrowser, p.fromFirefox},
	}

	for _, candidate := range chain {
		sc, err := candidate.fn(ctx)
		if err != nil {
			p.logger.Debug("session tier unavailable",
				slog.String("tier", string(candidate.tier)),
				logging.Error(err))
			continue
		}
		if sc == nil {
			continue
		}
		if err := p.verify(ctx, sc); err != nil {
			p.logger.Warn("session tier rejected",
				slog.String("tier", string(candidate.tier)),
				logging.Error(err))
			if candidate.tier == TierArtifact {
				if derr := p.discardArtifact(); derr != nil {
					p.logger.Warn("stale session artifact not removed", logging.Error(derr))
				}
			}
			continue
		}
		sc.Tier = candidate.tier
		if sc.UserAgent == "" {
			sc.UserAgent = p.cfg.Instagram.UserAgent
		}
		// Persist fresh credentials so the next run hits the artifact tier.
		if candidate.tier != TierArtifact {
			if err := p.saveArtifact(sc); err != nil {
				p.logger.Warn("session artifact not saved", logging.Error(err))
			}
		}
		p.logger.Info("session acquired", slog.String("tier", string(candidate.tier)))
		p.current = sc
		return sc, nil
	}

	p.logger.Info("falling back to anonymous session")
	p.current = &Context{
		UserAgent: p.cfg.Instagram.UserAgent,
		Tier:      TierAnonymous,
	}
	return p.current, nil
}

// Invalidate forgets the memoized session, typically after an auth rejection.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
}
