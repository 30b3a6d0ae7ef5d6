package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// VUScheduler manages the lifecycle of Virtual Users.
//
// It provides:
// - VU pool management (spawning/ stopping VUs)
// - Unique, monotonically assigned VU ids
// - Graceful shutdown coordination
//
// Executors use it to control VU counts. All VUs share one Runtime.
type VUScheduler struct {
	rt *Runtime

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	nextVUID atomic.Int32

	wg sync.WaitGroup

	logger *slog.Logger
}

// NewVUScheduler creates a scheduler for rt.
func NewVUScheduler(rt Runtime) (*VUScheduler, error) {
	if err := rt.validate(); err != nil {
		return nil, err
	}
	if rt.Logger == nil {
		rt.Logger = slog.Default()
	}
	return &VUScheduler{
		rt:     &rt,
		vus:    make(map[int]*VirtualUser),
		logger: rt.Logger,
	}, nil
}

// Runtime returns the shared runtime.
func (s *VUScheduler) Runtime() *Runtime {
	return s.rt
}

// SpawnVU creates and registers a new Virtual User.
//
// The VU is registered but not started; executors either loop it with Go
// or drive single iterations with RunIteration.
func (s *VUScheduler) SpawnVU() *VirtualUser {
	id := int(s.nextVUID.Add(1))
	vu := newVirtualUser(id, s.rt)

	s.vusMu.Lock()
	s.vus[id] = vu
	s.vusMu.Unlock()

	return vu
}

// Spawned returns how many VUs were ever created.
func (s *VUScheduler) Spawned() int {
	return int(s.nextVUID.Load())
}

// GetVU returns a VU by ID, or nil if not found.
func (s *VUScheduler) GetVU(id int) *VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return s.vus[id]
}

// LiveVUCount returns the count of VUs that are neither stopping nor
// stopped.
func (s *VUScheduler) LiveVUCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if !vu.Stopping() {
			count++
		}
	}
	return count
}

// Go runs vu in its own goroutine, looping iterations until the VU is
// asked to stop or ctx is cancelled. acquire, when non-nil, is called
// before every iteration; returning false ends the loop.
func (s *VUScheduler) Go(ctx context.Context, vu *VirtualUser, acquire func() bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunVU(ctx, vu, acquire)
	}()
}

// RunVU runs vu until it's stopped, ctx is cancelled or acquire refuses.
func (s *VUScheduler) RunVU(ctx context.Context, vu *VirtualUser, acquire func() bool) {
	defer s.RemoveVU(vu.ID)

	for ctx.Err() == nil && !vu.Stopping() {
		if acquire != nil && !acquire() {
			return
		}
		if err := vu.RunIteration(ctx); err != nil {
			if errors.Is(err, ErrVUStopped) || ctx.Err() != nil {
				return
			}
		}
	}
}

// StopAllVUs requests all VUs to stop after their current iteration.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// RemoveVU marks a VU stopped and forgets it.
func (s *VUScheduler) RemoveVU(id int) {
	s.vusMu.Lock()
	vu, exists := s.vus[id]
	delete(s.vus, id)
	s.vusMu.Unlock()

	if exists {
		vu.MarkStopped()
		s.UpdateMetrics()
	}
}

// Wait blocks until every goroutine started with Go has returned or
// timeout elapses. It reports whether they all returned.
func (s *VUScheduler) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// UpdateMetrics publishes the live VU count to the metrics engine.
func (s *VUScheduler) UpdateMetrics() {
	s.rt.Metrics.SetActiveVUs(s.LiveVUCount())
}

// ScaleVUs adjusts the live VU count to target.
//
// New VUs are looped with Go. Excess VUs are asked to stop and drain
// after their current iteration; they stop counting as live immediately.
// Callers must serialise ScaleVUs.
//
// Returns the live VU count after adjustment.
func (s *VUScheduler) ScaleVUs(ctx context.Context, target int) int {
	current := s.LiveVUCount()

	switch {
	case target > current:
		for i := current; i < target; i++ {
			s.Go(ctx, s.SpawnVU(), nil)
		}
	case target < current:
		excess := current - target

		s.vusMu.RLock()
		// Retire the newest VUs first so long-lived ids keep running.
		for id := int(s.nextVUID.Load()); id > 0 && excess > 0; id-- {
			vu, ok := s.vus[id]
			if !ok || vu.Stopping() {
				continue
			}
			vu.RequestStop()
			excess--
		}
		s.vusMu.RUnlock()
	}

	s.UpdateMetrics()
	return s.LiveVUCount()
}

// Logger returns the scheduler's logger.
func (s *VUScheduler) Logger() *slog.Logger {
	return s.logger
}
