// Package sweeper periodically re-drives retry-eligible webhook events.
// Retries stay caller-driven: the sweeper is just the scheduled caller,
// packaged in-process and disabled by default.
package sweeper

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/shohag/hookwave/internal/config"
	"github.com/shohag/hookwave/internal/webhook"
)

type Sweeper struct {
	svc   *webhook.Service
	cron  *cron.Cron
	batch int
	log   zerolog.Logger
}

func New(cfg config.SweepConfig, svc *webhook.Service, log zerolog.Logger) *Sweeper {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		svc:   svc,
		cron:  cron.New(),
		batch: batch,
		log:   log,
	}
}

func (s *Sweeper) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("schedule", schedule).Msg("retry sweeper started")
	return nil
}

func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("retry sweeper stopped")
}

// Sweep runs one pass: fetch retry-eligible events and bulk-retry them.
func (s *Sweeper) Sweep(ctx context.Context) (map[string]bool, error) {
	events, err := s.svc.ReadyForRetry(ctx, s.batch)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list retry-eligible events")
		return nil, err
	}
	if len(events) == 0 {
		return map[string]bool{}, nil
	}

	ids := make([]string, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}

	results := s.svc.BulkRetry(ctx, ids)

	succeeded := 0
	for _, ok := range results {
		if ok {
			succeeded++
		}
	}
	s.log.Info().
		Int("swept", len(ids)).
		Int("succeeded", succeeded).
		Msg("retry sweep completed")
	return results, nil
}
