package matching

import (
	"context"
	"log"
	"time"
)

// Scheduler drives the periodic match sweep: repeated synchronous calls into
// the facade, nothing more.
type Scheduler struct {
	service Service
	sweep   time.Duration
}

func NewScheduler(service Service, sweepInterval time.Duration) *Scheduler {
	return &Scheduler{service: service, sweep: sweepInterval}
}

func (s *Scheduler) Start(ctx context.Context) {
	go s.runEvery(ctx, s.sweep, s.service.NotifyNewMatchesSweep)
}

func (s *Scheduler) runEvery(ctx context.Context, interval time.Duration, task func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := task(ctx); err != nil {
				log.Printf("matching: scheduled sweep failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
