// Package scheduler drives the background work: the periodic scrape monitor
// and the cron-based enrichment sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"jobwire/scraper-service/internal/enrich"
	"jobwire/scraper-service/internal/messaging"
	"jobwire/scraper-service/internal/scrape"
)

// ScrapeRunner is satisfied by *scrape.Orchestrator.
type ScrapeRunner interface {
	Run(ctx context.Context, names []string, limit int) (scrape.Summary, error)
}

// Monitor repeats full scrape passes over all active channels. It is stopped
// cooperatively between iterations; an in-flight pass is only interrupted
// through ctx.
type Monitor struct {
	runner ScrapeRunner

	// Interval is the wait after a successful pass, ErrBackoff after a
	// failed one, IdleWait when no active channels are configured.
	Interval   time.Duration
	ErrBackoff time.Duration
	IdleWait   time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewMonitor builds a Monitor with the standard timings: interval as given,
// 60s error backoff, 5m idle wait.
func NewMonitor(runner ScrapeRunner, interval time.Duration) *Monitor {
	return &Monitor{
		runner:     runner,
		Interval:   interval,
		ErrBackoff: time.Minute,
		IdleWait:   5 * time.Minute,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the monitor loop. The first pass runs immediately.
func (m *Monitor) Start(ctx context.Context) {
	go m.loop(ctx)
	log.Printf("[monitor] started — interval=%s", m.Interval)
}

// Stop signals the loop and waits for it to finish its current iteration.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
	log.Println("[monitor] stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	for {
		wait := m.Interval

		sum, err := m.runner.Run(ctx, nil, 0)
		switch {
		case errors.Is(err, messaging.ErrAuthRequired):
			// Can't make progress until the operator verifies; check again
			// on the normal cadence.
			log.Println("[monitor] authentication required — waiting for operator verification")
		case err != nil:
			log.Printf("[monitor] pass failed: %v — retrying in %s", err, m.ErrBackoff)
			wait = m.ErrBackoff
		case sum.Channels == 0:
			log.Printf("[monitor] no active channels — next check in %s", m.IdleWait)
			wait = m.IdleWait
		}

		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Sweeper runs the enrichment batch on a cron schedule.
type Sweeper struct {
	cron *cron.Cron
	proc *enrich.Processor
	spec string
}

// NewSweeper fires a batch every intervalMinutes minutes.
func NewSweeper(proc *enrich.Processor, intervalMinutes int) *Sweeper {
	return &Sweeper{
		cron: cron.New(cron.WithLogger(cron.DefaultLogger)),
		proc: proc,
		spec: fmt.Sprintf("@every %dm", intervalMinutes),
	}
}

// Start registers the sweep job and starts the cron.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		processed, failed, err := s.proc.ProcessBatch(ctx, 0)
		if err != nil {
			log.Printf("[sweeper] enrichment batch error: %v", err)
			return
		}
		if processed+failed > 0 {
			log.Printf("[sweeper] enrichment batch — processed=%d failed=%d", processed, failed)
		}
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	log.Printf("[sweeper] cron started — spec: %s", s.spec)
	return nil
}

// Stop gracefully shuts down the cron.
func (s *Sweeper) Stop() {
	s.cron.Stop()
	log.Println("[sweeper] cron stopped")
}
