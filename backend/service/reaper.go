package service

import (
	"context"
	"sync"
	"time"

	"github.com/adwski/tandem/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultReapInterval = time.Minute
)

// Sweep destroys rooms that had no relayed messages for longer than idle timeout.
// It returns number of destroyed rooms. Notification failures of one room do not
// stop the sweep.
func (svc *Service) Sweep(now time.Time) int {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	var reaped int
	for _, roomID := range svc.rooms.Idle(now.Add(-svc.idleTimeout)) {
		if err := svc.destroyRoom(roomID, model.ReasonTimeout); err != nil {
			svc.logger.Warn().Err(err).
				Str("room", roomID).
				Msg("idle room closed with errors")
		}
		reaped++
	}
	return reaped
}

type (
	Sweeper interface {
		Sweep(now time.Time) int
	}

	// Reaper periodically sweeps idle rooms.
	Reaper struct {
		svc      Sweeper
		interval time.Duration
		clock    func() time.Time
		logger   zerolog.Logger
	}

	ReaperConfig struct {
		Sweeper  Sweeper
		Logger   *zerolog.Logger
		Interval time.Duration
		Clock    func() time.Time
	}
)

func NewReaper(cfg ReaperConfig) *Reaper {
	r := &Reaper{
		svc:      cfg.Sweeper,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With().Str("component", "reaper").Logger(),
	}
	if r.interval <= 0 {
		r.interval = defaultReapInterval
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	return r
}

func (r *Reaper) Run(ctx context.Context, wg *sync.WaitGroup) {
	ticker := time.NewTicker(r.interval)
	defer func() {
		ticker.Stop()
		r.logger.Debug().Msg("reaper stopped")
		wg.Done()
	}()

	r.logger.Info().Dur("interval", r.interval).Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.svc.Sweep(r.clock()); n > 0 {
				r.logger.Info().Int("rooms", n).Msg("idle rooms reaped")
			}
		}
	}
}
