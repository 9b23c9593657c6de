package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"eclipse/internal/fileutil"
)

// fromFirefox imports Instagram cookies from a local Firefox profile. The
// cookies database is copied to scratch first; Firefox holds it locked while
// running.
func (p *Provider) fromFirefox(ctx context.Context) (*Context, error) {
	source := p.cfg.Instagram.FirefoxCookiePath
	if source == "" {
		return nil, errors.New("no firefox cookie path configured")
	}
	if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("firefox cookies unavailable: %w", err)
	}

	scratch, err := os.MkdirTemp("", "eclipse-cookies-")
	if err != nil {
		return nil, fmt.Errorf("create cookie scratch: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	copyPath := filepath.Join(scratch, "cookies.sqlite")
	if err := fileutil.CopyFile(source, copyPath); err != nil {
		return nil, fmt.Errorf("copy firefox cookies: %w", err)
	}

	db, err := sql.Open("sqlite", copyPath)
	if err != nil {
		return nil, fmt.Errorf("open firefox cookies: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx,
		`SELECT name, value FROM moz_cookies
         WHERE host LIKE '%instagram.com' AND name IN ('sessionid', 'csrftoken', 'ds_user_id', 'mid')`)
	if err != nil {
		return nil, fmt.Errorf("query firefox cookies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sc := &Context{UserAgent: p.cfg.Instagram.UserAgent}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan firefox cookie: %w", err)
		}
		if value != "" {
			sc.Cookies = append(sc.Cookies, Cookie{Name: name, Value: value})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firefox cookies: %w", err)
	}

	if sc.Cookie("sessionid") == "" {
		return nil, errors.New("firefox profile holds no instagram session")
	}
	return sc, nil
}
