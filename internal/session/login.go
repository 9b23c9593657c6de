package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eclipse/internal/services"
)

// fromLogin performs the web login flow: fetch the login page to obtain a
// csrftoken, then post the credentials and keep the returned session cookies.
func (p *Provider) fromLogin(ctx context.Context) (*Context, error) {
	username := p.cfg.Instagram.Username
	password := p.cfg.Instagram.Password
	if username == "" || password == "" {
		return nil, errors.New("no login credentials configured")
	}

	base := p.cfg.Instagram.APIBase
	csrf, err := p.fetchCSRFToken(ctx, base)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("enc_password", fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s", time.Now().Unix(), password))
	form.Set("queryParams", "{}")
	form.Set("optIntoOneTap", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		base+"/api/v1/web/accounts/login/ajax/", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", p.cfg.Instagram.UserAgent)
	req.Header.Set("X-CSRFToken", csrf)
	req.AddCookie(&http.Cookie{Name: "csrftoken", Value: csrf})

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, services.Wrap(services.ErrRateLimited, "session", "login", "login rate limited", nil)
	}

	var body struct {
		Authenticated bool   `json:"authenticated"`
		Status        string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	if !body.Authenticated {
		return nil, services.Wrap(services.ErrAuthRequired, "session", "login", "credentials rejected", nil)
	}

	sc := &Context{Username: username, UserAgent: p.cfg.Instagram.UserAgent}
	for _, ck := range resp.Cookies() {
		switch ck.Name {
		case "sessionid", "csrftoken", "ds_user_id", "mid":
			if ck.Value != "" {
				sc.Cookies = append(sc.Cookies, Cookie{Name: ck.Name, Value: ck.Value})
			}
		}
	}
	if sc.Cookie("sessionid") == "" {
		return nil, errors.New("login succeeded without a session cookie")
	}
	return sc, nil
}

func (p *Provider) fetchCSRFToken(ctx context.Context, base string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/accounts/login/", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", p.cfg.Instagram.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch login page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	for _, ck := range resp.Cookies() {
		if ck.Name == "csrftoken" && ck.Value != "" {
			return ck.Value, nil
		}
	}
	return "", errors.New("no csrf token issued")
}

// verifySession makes a cheap authenticated request and rejects sessions the
// API no longer honors.
func (p *Provider) verifySession(ctx context.Context, sc *Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.cfg.Instagram.APIBase+"/api/v1/accounts/current_user/", nil)
	if err != nil {
		return err
	}
	sc.Apply(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("verify session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<14))

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrAuthRequired, "session", "verify", "session no longer valid", nil)
	default:
		return fmt.Errorf("verify session: unexpected status %d", resp.StatusCode)
	}
}
