package store

import "time"

// Status represents the lifecycle of a delivery job.
type Status string

const (
	StatusSubmitted   Status = "submitted"
	StatusResolving   Status = "resolving"
	StatusFetching    Status = "fetching"
	StatusTranscoding Status = "transcoding"
	StatusDelivering  Status = "delivering"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

var allStatuses = []Status{
	StatusSubmitted,
	StatusResolving,
	StatusFetching,
	StatusTranscoding,
	StatusDelivering,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Terminal reports whether a job in this status will never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known lifecycle statuses.
func (s Status) Valid() bool {
	_, ok := statusSet[s]
	return ok
}

// Job is a single delivery request persisted in SQLite.
type Job struct {
	ID             string
	RequesterID    int64
	Link           string
	Kind           string
	Status         Status
	ErrorMessage   string
	AssetCount     int
	DeliveredCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Counters holds the daily and lifetime delivery totals.
type Counters struct {
	Today         int64
	Lifetime      int64
	LastResetDate string
}

// Stats aggregates job counts per key lifecycle states.
type Stats struct {
	Total     int
	Active    int
	Completed int
	Failed    int
	Today     int64
	Lifetime  int64
}
