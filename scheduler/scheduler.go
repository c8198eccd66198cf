// Package scheduler triggers retrieval runs once a day at a configured
// wall-clock time.
package scheduler

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler owns the cron instance behind scheduled retrieval runs. At
// most one run entry is active; rescheduling replaces it.
type Scheduler struct {
	cron     *cron.Cron
	location *time.Location

	mu      sync.Mutex
	entryID cron.EntryID
}

// New creates a Scheduler evaluating run times in the given timezone.
func New(timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		location: loc,
	}, nil
}

// Schedule arranges for task to run daily at runTime (HH:MM, 24-hour).
// Any previously scheduled run is replaced.
func (s *Scheduler) Schedule(runTime string, task func()) error {
	hour, minute, err := parseClock(runTime)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}

	expr := fmt.Sprintf("%d %d * * *", minute, hour)
	entryID, err := s.cron.AddFunc(expr, task)
	if err != nil {
		return fmt.Errorf("adding cron entry: %w", err)
	}
	s.entryID = entryID

	slog.Info("retrieval run scheduled",
		"time", runTime, "cron", expr, "timezone", s.location.String())
	return nil
}

// Next returns the next scheduled run time, or the zero time when
// nothing is scheduled or the scheduler has not been started.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	id := s.entryID
	s.mu.Unlock()
	if id == 0 {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler. Runs already in flight finish on their own.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// parseClock splits an HH:MM string into hour and minute. Both fields
// must be two digits.
func parseClock(t string) (int, int, error) {
	hh, mm, ok := strings.Cut(t, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, 0, fmt.Errorf("invalid time format %q: must be HH:MM", t)
	}
	for _, r := range hh + mm {
		if r < '0' || r > '9' {
			return 0, 0, fmt.Errorf("invalid time format %q: must be HH:MM", t)
		}
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour > 23 {
		return 0, 0, fmt.Errorf("invalid time %q: hour must be 00-23", t)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time %q: minute must be 00-59", t)
	}
	return hour, minute, nil
}
