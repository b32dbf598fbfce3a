// sweeper/sweeper.go
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/wfunc/roundtable/logger"
	"github.com/wfunc/roundtable/monitor"
)

// Resolver attempts a round for every active game.
type Resolver interface {
	ResolveAllActiveGames(ctx context.Context) error
}

// HealthReporter receives the sweeper's liveness.
type HealthReporter interface {
	SetServing(serving bool)
}

// Sweeper periodically resolves rounds that no command triggered, most
// notably ones whose oldest action timed out.
type Sweeper struct {
	resolver Resolver
	interval time.Duration
	cooldown time.Duration
	monitor  *monitor.Monitor
	health   HealthReporter
}

type Option func(*Sweeper)

func WithMonitor(m *monitor.Monitor) Option {
	return func(s *Sweeper) { s.monitor = m }
}

func WithHealth(h HealthReporter) Option {
	return func(s *Sweeper) { s.health = h }
}

func New(resolver Resolver, interval, cooldown time.Duration, opts ...Option) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}
	s := &Sweeper{resolver: resolver, interval: interval, cooldown: cooldown}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps until ctx is cancelled and then returns ctx.Err(). A failed or
// panicking sweep is logged and followed by the cooldown; it never stops
// the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	logger.Log.Infof("Starting round processor with %v interval", s.interval)
	s.setServing(true)
	defer s.setServing(false)

	wait := s.interval
	for {
		if err := sleep(ctx, wait); err != nil {
			return err
		}

		start := time.Now()
		err := s.sweep(ctx)
		s.monitor.ObserveSweep(time.Since(start), err != nil)

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Log.Errorf("Error in round processor: %v", err)
			s.setServing(false)
			if err := sleep(ctx, s.cooldown); err != nil {
				return err
			}
			s.setServing(true)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panicked: %v", r)
		}
	}()
	return s.resolver.ResolveAllActiveGames(ctx)
}

func (s *Sweeper) setServing(serving bool) {
	if s.health != nil {
		s.health.SetServing(serving)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
