package store

import (
	"context"
	"fmt"
)

const counterDateLayout = "2006-01-02"

// RecordCompleted bumps the usage counters by delivered items, resetting the
// daily total when the UTC date has rolled over since the last bump.
func (s *Store) RecordCompleted(ctx context.Context, delivered int) error {
	if delivered <= 0 {
		return nil
	}
	today := s.now().UTC().Format(counterDateLayout)

	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin counters tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var (
			todayCount    int64
			lifetimeCount int64
			lastReset     string
		)
		err = tx.QueryRowContext(ctx,
			`SELECT today_count, lifetime_count, last_reset_date FROM counters WHERE id = 1`,
		).Scan(&todayCount, &lifetimeCount, &lastReset)
		if err != nil {
			return fmt.Errorf("read counters: %w", err)
		}

		if lastReset != today {
			todayCount = 0
		}
		todayCount += int64(delivered)
		lifetimeCount += int64(delivered)

		if _, err := tx.ExecContext(ctx,
			`UPDATE counters SET today_count = ?, lifetime_count = ?, last_reset_date = ? WHERE id = 1`,
			todayCount, lifetimeCount, today); err != nil {
			return fmt.Errorf("update counters: %w", err)
		}
		return tx.Commit()
	})
}

// Counters reads the usage totals. The daily total reads as zero when its
// reset date is stale, even before the next RecordCompleted writes it.
func (s *Store) Counters(ctx context.Context) (Counters, error) {
	ctx = ensureContext(ctx)
	var c Counters
	err := s.db.QueryRowContext(ctx,
		`SELECT today_count, lifetime_count, last_reset_date FROM counters WHERE id = 1`,
	).Scan(&c.Today, &c.Lifetime, &c.LastResetDate)
	if err != nil {
		return Counters{}, fmt.Errorf("read counters: %w", err)
	}
	if c.LastResetDate != s.now().UTC().Format(counterDateLayout) {
		c.Today = 0
	}
	return c, nil
}
