/*
sweeper.go - Background expiry sweep

PURPOSE:
  Periodically expires held reservations whose target date has passed.
  Expiry is lazy and advisory: a reservation lapsing changes nothing about
  the household's balance, so a missed sweep tick only delays bookkeeping.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Sweeps once immediately on Start, then on every tick
  - Stop waits for an in-flight sweep to finish

USAGE:
  sweeper := reservation.NewSweeper(manager, log)
  sweeper.Start()
  // ... later
  sweeper.Stop()
*/
package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultSweepInterval is how often the sweep checks for lapsed bookings.
const DefaultSweepInterval = 15 * time.Minute

// Sweeper expires lapsed reservations on a schedule.
type Sweeper struct {
	Manager       *Manager
	CheckInterval time.Duration
	Log           *logrus.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweeper creates a sweeper with the default interval.
func NewSweeper(manager *Manager, log *logrus.Logger) *Sweeper {
	return &Sweeper{
		Manager:       manager,
		CheckInterval: DefaultSweepInterval,
		Log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the background sweep.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.Log.WithField("interval", s.CheckInterval.String()).Info("reservation sweeper started")
}

// Stop halts the sweep and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Log.Info("reservation sweeper stopped")
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.sweep()

	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

// RunNow triggers an immediate sweep (admin/testing).
func (s *Sweeper) RunNow() {
	s.sweep()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := s.Manager.ExpireDue(ctx, s.Manager.now())
	if err != nil {
		s.Log.WithError(err).Error("reservation sweep failed")
		return
	}
	if expired > 0 {
		s.Log.WithField("expired", expired).Info("reservation sweep completed")
	}
}
