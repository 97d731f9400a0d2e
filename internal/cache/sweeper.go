package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweepable is the part of a Cache the Sweeper drives.
type Sweepable interface {
	Name() string
	Timeout() time.Duration
	SweepExpired() int
}

// Sweeper periodically evicts expired entries from a set of caches. It ticks
// at the shortest timeout among them.
type Sweeper struct {
	caches   []Sweepable
	interval time.Duration
	log      logrus.FieldLogger
}

func NewSweeper(log logrus.FieldLogger, caches ...Sweepable) *Sweeper {
	var interval time.Duration
	for _, c := range caches {
		if t := c.Timeout(); t > 0 && (interval == 0 || t < interval) {
			interval = t
		}
	}
	if interval == 0 {
		interval = time.Minute
	}
	return &Sweeper{caches: caches, interval: interval, log: log}
}

func (s *Sweeper) Interval() time.Duration { return s.interval }

// SweepOnce runs a single pass over every cache and returns the total evicted.
func (s *Sweeper) SweepOnce() int {
	total := 0
	for _, c := range s.caches {
		n := c.SweepExpired()
		if n > 0 {
			s.log.WithFields(logrus.Fields{"cache": c.Name(), "evicted": n}).Debug("cache sweep")
		}
		total += n
	}
	return total
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval.String()).Info("cache sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("cache sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}
