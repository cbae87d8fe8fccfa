// Package scheduler fires scheduled episode generation per profile.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/apresai/newsroom/internal/orchestrator"
	"github.com/apresai/newsroom/internal/profile"
	"github.com/apresai/newsroom/internal/store"
)

// Scheduler owns one cron entry per profile with an enabled schedule.
type Scheduler struct {
	store *store.Store
	orch  *orchestrator.Orchestrator
	cron  *cron.Cron
	log   *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(st *store.Store, orch *orchestrator.Orchestrator, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:   st,
		orch:    orch,
		cron:    cron.New(),
		log:     logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins firing. Call Reconcile first to load the schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for in-flight triggers.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Reconcile syncs cron entries with the profiles stored in the
// database. Call it at startup and after any profile schedule change.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	profiles, err := s.store.ScheduledProfiles(ctx)
	if err != nil {
		return fmt.Errorf("load scheduled profiles: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		seen[p.ID] = true
		if id, ok := s.entries[p.ID]; ok {
			s.cron.Remove(id)
		}
		spec, err := cronSpec(p.Schedule)
		if err != nil {
			s.log.WarnContext(ctx, "Invalid schedule, skipping profile", "profile", p.ID, "error", err)
			continue
		}
		profileID := p.ID
		id, err := s.cron.AddFunc(spec, func() { s.trigger(profileID) })
		if err != nil {
			s.log.WarnContext(ctx, "Schedule registration failed", "profile", p.ID, "error", err)
			continue
		}
		s.entries[p.ID] = id
		s.log.InfoContext(ctx, "Profile scheduled", "profile", p.ID, "spec", spec)
	}

	// Drop entries for profiles whose schedule was disabled or removed.
	for profileID, id := range s.entries {
		if !seen[profileID] {
			s.cron.Remove(id)
			delete(s.entries, profileID)
		}
	}
	return nil
}

func (s *Scheduler) trigger(profileID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobID, err := s.orch.Start(ctx, profileID, store.Options{})
	if err != nil {
		s.log.ErrorContext(ctx, "Scheduled generation failed to start", "profile", profileID, "error", err)
		return
	}
	if err := s.store.SetLastScheduledRun(ctx, profileID, time.Now().UTC()); err != nil {
		s.log.WarnContext(ctx, "Record scheduled run failed", "profile", profileID, "error", err)
	}
	s.log.InfoContext(ctx, "Scheduled generation started", "profile", profileID, "job", jobID)
}

// cronSpec translates a profile schedule into a cron expression with the
// profile's timezone prefix.
func cronSpec(sched profile.Schedule) (string, error) {
	if sched.Hour < 0 || sched.Hour > 23 || sched.Minute < 0 || sched.Minute > 59 {
		return "", fmt.Errorf("time %02d:%02d out of range", sched.Hour, sched.Minute)
	}
	dow := "*"
	if len(sched.Weekdays) > 0 {
		parts := make([]string, 0, len(sched.Weekdays))
		for _, d := range sched.Weekdays {
			if d < 0 || d > 6 {
				return "", fmt.Errorf("weekday %d out of range", d)
			}
			parts = append(parts, fmt.Sprintf("%d", int(d)))
		}
		dow = strings.Join(parts, ",")
	}
	spec := fmt.Sprintf("%d %d * * %s", sched.Minute, sched.Hour, dow)
	if sched.Timezone != "" {
		if _, err := time.LoadLocation(sched.Timezone); err != nil {
			return "", fmt.Errorf("timezone %q: %w", sched.Timezone, err)
		}
		spec = "CRON_TZ=" + sched.Timezone + " " + spec
	}
	return spec, nil
}
