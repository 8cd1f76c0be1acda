package sitrep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// retryDelay spaces the single retry after a failed scheduled run.
const retryDelay = time.Hour

// Scheduler fires the daily report at a fixed UTC hour.
type Scheduler struct {
	gen  *Generator
	cron *cron.Cron
}

func NewScheduler(gen *Generator, hourUTC int) (*Scheduler, error) {
	s := &Scheduler{
		gen:  gen,
		cron: cron.New(cron.WithLocation(time.UTC)),
	}
	spec := fmt.Sprintf("0 %d * * *", hourUTC)
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("error scheduling sitrep: %w", err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("sitrep scheduler started")
}

// Stop halts the cron loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("sitrep scheduler stopped")
}

func (s *Scheduler) run() {
	if err := s.generate(); err != nil {
		slog.Error("scheduled sitrep generation failed, retrying in 1h", "error", err)
		time.AfterFunc(retryDelay, func() {
			if err := s.generate(); err != nil {
				slog.Error("sitrep retry failed", "error", err)
			}
		})
	}
}

func (s *Scheduler) generate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_, err := s.gen.Generate(ctx, "cron")
	return err
}
