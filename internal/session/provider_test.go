package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"eclipse/internal/testsupport"
)

func TestAcquirePrefersArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeArtifact(t, cfg.Instagram.SessionFile, &Context{
		Username: "someone",
		Cookies:  []Cookie{{Name: "sessionid", Value: "abc"}},
	})

	p := NewProvider(cfg, nil)
	p.verify = func(ctx context.Context, sc *Context) error { return nil }

	sc, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sc.Tier != TierArtifact {
		t.Fatalf("tier = %s", sc.Tier)
	}
	if sc.Cookie("sessionid") != "abc" {
		t.Fatalf("cookie = %q", sc.Cookie("sessionid"))
	}
	if sc.Anonymous() {
		t.Fatal("artifact session reported anonymous")
	}
}

func TestAcquireFallsBackToAnonymous(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	p := NewProvider(cfg, nil)
	p.verify = func(ctx context.Context, sc *Context) error {
		return errors.New("rejected")
	}

	sc, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sc.Tier != TierAnonymous || !sc.Anonymous() {
		t.Fatalf("expected anonymous session, got tier %s", sc.Tier)
	}
}

func TestAcquireDiscardsArtifactFailingVerification(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeArtifact(t, cfg.Instagram.SessionFile, &Context{
		Username: "someone",
		Cookies:  []Cookie{{Name: "sessionid", Value: "expired"}},
	})

	p := NewProvider(cfg, nil)
	p.verify = func(ctx context.Context, sc *Context) error {
		return errors.New("session no longer valid")
	}

	sc, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sc.Tier != TierAnonymous {
		t.Fatalf("tier = %s", sc.Tier)
	}
	// The rejected artifact is gone; the next run starts clean instead of
	// reloading and re-failing it.
	if _, err := os.Stat(cfg.Instagram.SessionFile); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale artifact still present: %v", err)
	}
}

func TestAcquireRejectsArtifactForOtherAccount(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Instagram.Username = "someone"
	writeArtifact(t, cfg.Instagram.SessionFile, &Context{
		Username: "stranger",
		Cookies:  []Cookie{{Name: "sessionid", Value: "abc"}},
	})

	p := NewProvider(cfg, nil)
	verifyCalls := 0
	p.verify = func(ctx context.Context, sc *Context) error {
		verifyCalls++
		return nil
	}

	sc, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sc.Tier != TierAnonymous {
		t.Fatalf("tier = %s", sc.Tier)
	}
	if verifyCalls != 0 {
		t.Fatalf("mismatched artifact reached verification %d times", verifyCalls)
	}
	// The mismatch is a configuration conflict, not staleness; the other
	// account's artifact stays on disk.
	if _, err := os.Stat(cfg.Instagram.SessionFile); err != nil {
		t.Fatalf("artifact removed on identity mismatch: %v", err)
	}
}

func TestAcquireMemoizes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeArtifact(t, cfg.Instagram.SessionFile, &Context{
		Cookies: []Cookie{{Name: "sessionid", Value: "abc"}},
	})

	p := NewProvider(cfg, nil)
	verifyCalls := 0
	p.verify = func(ctx context.Context, sc *Context) error {
		verifyCalls++
		return nil
	}

	first, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("expected the memoized session")
	}
	if verifyCalls != 1 {
		t.Fatalf("verify called %d times", verifyCalls)
	}

	p.Invalidate()
	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if verifyCalls != 2 {
		t.Fatalf("verify not re-run after invalidate: %d calls", verifyCalls)
	}
}

func TestAcquireImportsFirefoxCookies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cookiePath := filepath.Join(t.TempDir(), "cookies.sqlite")
	writeFirefoxCookies(t, cookiePath, map[string]string{
		"sessionid":  "ff-session",
		"csrftoken":  "ff-csrf",
		"ds_user_id": "99",
	})
	cfg.Instagram.FirefoxCookiePath = cookiePath

	p := NewProvider(cfg, nil)
	p.verify = func(ctx context.Context, sc *Context) error { return nil }

	sc, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sc.Tier != TierBrowser {
		t.Fatalf("tier = %s", sc.Tier)
	}
	if sc.Cookie("sessionid") != "ff-session" || sc.Cookie("csrftoken") != "ff-csrf" {
		t.Fatalf("cookies = %+v", sc.Cookies)
	}

	// A working browser import is persisted for the next run.
	if _, err := os.Stat(cfg.Instagram.SessionFile); err != nil {
		t.Fatalf("session artifact not written: %v", err)
	}
}

func TestLoginTier(t *testing.T) {
	var loginHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts/login/":
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf-1"})
		case "/api/v1/web/accounts/login/ajax/":
			loginHits++
			if r.Header.Get("X-CSRFToken") != "csrf-1" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "fresh"})
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf-2"})
			_, _ = w.Write([]byte(`{"authenticated": true, "status": "ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithAPIBases("", srv.URL))
	cfg.Instagram.Username = "someone"
	cfg.Instagram.Password = "hunter2"

	p := NewProvider(cfg, nil)
	p.verify = func(ctx context.Context, sc *Context) error { return nil }

	sc, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sc.Tier != TierLogin {
		t.Fatalf("tier = %s", sc.Tier)
	}
	if sc.Cookie("sessionid") != "fresh" {
		t.Fatalf("cookies = %+v", sc.Cookies)
	}
	if loginHits != 1 {
		t.Fatalf("login hit %d times", loginHits)
	}
}

func TestApplySetsHeadersAndCookies(t *testing.T) {
	sc := &Context{
		UserAgent: "agent/1.0",
		Cookies:   []Cookie{{Name: "sessionid", Value: "abc"}},
	}
	req, err := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	if err != nil {
		t.Fatal(err)
	}
	sc.Apply(req)
	if req.Header.Get("User-Agent") != "agent/1.0" {
		t.Fatal("user agent not applied")
	}
	if ck, err := req.Cookie("sessionid"); err != nil || ck.Value != "abc" {
		t.Fatal("session cookie not applied")
	}
}

func writeArtifact(t *testing.T, path string, sc *Context) {
	t.Helper()
	data, err := json.Marshal(sc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func writeFirefoxCookies(t *testing.T, path string, cookies map[string]string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(`CREATE TABLE moz_cookies (id INTEGER PRIMARY KEY, host TEXT, name TEXT, value TEXT)`); err != nil {
		t.Fatal(err)
	}
	for name, value := range cookies {
		if _, err := db.Exec(`INSERT INTO moz_cookies (host, name, value) VALUES ('.instagram.com', ?, ?)`, name, value); err != nil {
			t.Fatal(err)
		}
	}
}
