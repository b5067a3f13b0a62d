package mowas

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// SupervisorPeriod is the cycle length. The phase-locked sleep keeps
// cycle starts aligned to it even when a cycle overruns.
const SupervisorPeriod = 60 * time.Second

// Supervisor drives the gateway: once per period it pulls the sources,
// maintains the cache, hands the head alerts to every sink, persists
// the cache and lets the sources clean up. One misbehaving source or
// sink must never take the loop down, so each of their calls runs
// behind a recover guard.
type Supervisor struct {
	logger  zerolog.Logger
	cache   *Cache
	sources []Source
	targets []Target
	period  time.Duration
}

func NewSupervisor(cache *Cache, sources []Source, targets []Target, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		logger:  logger.With().Str("component", "supervisor").Logger(),
		cache:   cache,
		sources: sources,
		targets: targets,
		period:  SupervisorPeriod,
	}
}

// Run cycles until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		start := time.Now()
		s.cycle(ctx)
		sleep := s.period - time.Since(start)%s.period
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("shutting down")
			return
		case <-time.After(sleep):
		}
	}
}

func (s *Supervisor) cycle(ctx context.Context) {
	s.logger.Debug().Msg("cycle start")

	for _, src := range s.sources {
		s.guard("source", src.Type()+"/"+src.Name(), func() {
			alerts, err := src.Fetch(ctx)
			if err != nil {
				s.logger.Error().Err(err).Str("source", src.Type()+"/"+src.Name()).Msg("fetch failed")
				return
			}
			for _, alert := range alerts {
				s.cache.Update(alert)
			}
		})
	}

	valid := s.cache.Purge()
	s.cache.PersistentIDs()
	heads := s.cache.Query()

	for _, tgt := range s.targets {
		s.guard("target", tgt.Type()+"/"+tgt.Name(), func() {
			tgt.Alert(heads)
		})
	}

	if err := s.cache.Dump(); err != nil {
		s.logger.Error().Err(err).Msg("cannot persist cache")
	}

	for _, src := range s.sources {
		s.guard("source", src.Type()+"/"+src.Name(), func() {
			if err := src.Purge(valid); err != nil {
				s.logger.Error().Err(err).Str("source", src.Type()+"/"+src.Name()).Msg("purge failed")
			}
		})
	}

	s.logger.Debug().Msg("cycle done")
}

// guard contains a panic from one source or sink to the current cycle.
func (s *Supervisor) guard(kind, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str(kind, name).
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("panic contained")
		}
	}()
	fn()
}
