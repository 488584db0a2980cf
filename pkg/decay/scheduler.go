package decay

import (
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the decay pass once per day.
const DefaultSchedule = "@daily"

// Scheduler triggers decay passes on a cron schedule.
type Scheduler struct {
	manager *Manager
	cron    *cron.Cron
}

// NewScheduler wires the manager to a cron expression. An empty schedule
// uses DefaultSchedule.
func NewScheduler(manager *Manager, schedule string) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := manager.RunPass(); err != nil {
			log.Printf("⚠️  Scheduled decay pass failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid decay schedule %q: %w", schedule, err)
	}

	return &Scheduler{manager: manager, cron: c}, nil
}

// Start begins scheduling in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling. A pass already in flight finishes.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
