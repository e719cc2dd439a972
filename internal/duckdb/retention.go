package duckdb

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chime-experiment/alpenhorn-chime/internal/log"
)

const (
	day                    = 24 * time.Hour
	defaultRetentionPeriod = time.Hour
)

// RequestRetention purges completed and cancelled copy requests once they
// are older than Days.
type RequestRetention struct {
	store    *Store
	days     int
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewRequestRetention returns nil when days is not positive. A zero
// interval means hourly.
func NewRequestRetention(store *Store, days int, interval time.Duration) *RequestRetention {
	if days <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = defaultRetentionPeriod
	}
	return &RequestRetention{
		store:    store,
		days:     days,
		interval: interval,
		now:      time.Now,
		logger:   log.WithComponent("retention"),
	}
}

// Purge deletes the requests that have aged out and reports how many went.
func (r *RequestRetention) Purge(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-time.Duration(r.days) * day)
	n, err := r.store.DeleteClosedRequestsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info().Int64(log.FieldCount, n).Int("days", r.days).Msg("purged closed copy requests")
	}
	return n, nil
}

// Run purges once straight away, then on every interval until ctx ends.
// Failed passes are logged and retried next time round.
func (r *RequestRetention) Run(ctx context.Context) error {
	for {
		if _, err := r.Purge(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("request purge failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.interval):
		}
	}
}
