package worker

import (
	"sync"
	"time"
)

// Scheduler runs jobs after a delay without blocking the consume loop. Drain
// cancels timers that have not fired yet; their deliveries stay unacked and
// the consumer group redelivers them later.
type Scheduler struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	timers  map[*time.Timer]struct{}
	drained bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[*time.Timer]struct{})}
}

// Schedule arranges for job to run once after delay. Returns false when the
// scheduler is already draining and the job was not accepted.
func (s *Scheduler) Schedule(delay time.Duration, job func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drained {
		return false
	}
	s.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		job()
	})
	s.timers[t] = struct{}{}
	return true
}

// Drain stops accepting jobs, cancels pending timers and waits for in-flight
// jobs to finish.
func (s *Scheduler) Drain() {
	s.mu.Lock()
	s.drained = true
	for t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, t)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
