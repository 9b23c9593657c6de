package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenPath(filepath.Join(t.TempDir(), "eclipse.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "job-1", 42, "https://www.instagram.com/p/Cxyz/")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.Status != StatusSubmitted {
		t.Fatalf("status = %q", job.Status)
	}
	if job.RequesterID != 42 {
		t.Fatalf("requester = %d", job.RequesterID)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Fatal("timestamps not recorded")
	}

	missing, err := s.GetJob(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Fatal("expected nil for unknown job")
	}
}

func TestStatusTransitions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateJob(ctx, "job-1", 1, "link"); err != nil {
		t.Fatal(err)
	}

	for _, status := range []Status{StatusResolving, StatusFetching, StatusTranscoding, StatusDelivering} {
		if err := s.UpdateStatus(ctx, "job-1", status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
		job, err := s.GetJob(ctx, "job-1")
		if err != nil {
			t.Fatal(err)
		}
		if job.Status != status {
			t.Fatalf("status = %q, want %q", job.Status, status)
		}
	}

	if err := s.UpdateStatus(ctx, "job-1", Status("bogus")); err == nil {
		t.Fatal("expected rejection of unknown status")
	}
	if err := s.UpdateStatus(ctx, "missing", StatusFetching); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestFinishJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateJob(ctx, "ok", 1, "link"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateJob(ctx, "bad", 1, "link"); err != nil {
		t.Fatal(err)
	}

	if err := s.FinishJob(ctx, "ok", StatusCompleted, "ignored", 3); err != nil {
		t.Fatal(err)
	}
	job, _ := s.GetJob(ctx, "ok")
	if job.Status != StatusCompleted || job.DeliveredCount != 3 || job.ErrorMessage != "" {
		t.Fatalf("completed job = %+v", job)
	}

	if err := s.FinishJob(ctx, "bad", StatusFailed, "fetch failed", 2); err != nil {
		t.Fatal(err)
	}
	job, _ = s.GetJob(ctx, "bad")
	if job.Status != StatusFailed || job.ErrorMessage != "fetch failed" || job.DeliveredCount != 0 {
		t.Fatalf("failed job = %+v", job)
	}

	if err := s.FinishJob(ctx, "ok", StatusFetching, "", 0); err == nil {
		t.Fatal("non-terminal status accepted")
	}
}

func TestFailStale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateJob(ctx, "stuck", 1, "link"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateJob(ctx, "done", 1, "link"); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishJob(ctx, "done", StatusCompleted, "", 1); err != nil {
		t.Fatal(err)
	}

	affected, err := s.FailStale(ctx, "interrupted by restart")
	if err != nil {
		t.Fatal(err)
	}
	if affected != 1 {
		t.Fatalf("affected = %d", affected)
	}
	job, _ := s.GetJob(ctx, "stuck")
	if job.Status != StatusFailed || job.ErrorMessage != "interrupted by restart" {
		t.Fatalf("stale job = %+v", job)
	}
	job, _ = s.GetJob(ctx, "done")
	if job.Status != StatusCompleted {
		t.Fatalf("completed job touched: %+v", job)
	}
}

func TestCountersRollover(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	day1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return day1 }

	if err := s.RecordCompleted(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordCompleted(ctx, 2); err != nil {
		t.Fatal(err)
	}
	c, err := s.Counters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.Today != 5 || c.Lifetime != 5 {
		t.Fatalf("counters = %+v", c)
	}

	s.now = func() time.Time { return day1.Add(24 * time.Hour) }
	c, err = s.Counters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.Today != 0 || c.Lifetime != 5 {
		t.Fatalf("counters after rollover = %+v", c)
	}

	if err := s.RecordCompleted(ctx, 4); err != nil {
		t.Fatal(err)
	}
	c, err = s.Counters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.Today != 4 || c.Lifetime != 9 {
		t.Fatalf("counters after new day = %+v", c)
	}
}

func TestRecordCompletedIgnoresNonPositive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.RecordCompleted(ctx, 0); err != nil {
		t.Fatal(err)
	}
	c, err := s.Counters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.Lifetime != 0 {
		t.Fatalf("lifetime = %d", c.Lifetime)
	}
}

func TestRecentJobsAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		tick := base.Add(time.Duration(i) * time.Second)
		s.now = func() time.Time { return tick }
		if _, err := s.CreateJob(ctx, id, int64(i), "link"); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.FinishJob(ctx, "a", StatusCompleted, "", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishJob(ctx, "b", StatusFailed, "boom", 0); err != nil {
		t.Fatal(err)
	}

	jobs, err := s.RecentJobs(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 || jobs[0].ID != "c" || jobs[1].ID != "b" {
		t.Fatalf("recent order wrong: %v", jobs)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Completed != 1 || stats.Failed != 1 || stats.Active != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
