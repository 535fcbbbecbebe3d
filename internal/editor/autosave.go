package editor

import (
	"sync"
	"time"
)

// DefaultAutosaveDelay is the idle period before a dirty draft is flushed.
const DefaultAutosaveDelay = 3 * time.Second

// Scheduler debounces persistence of a dirty draft and guarantees a final
// synchronous flush on session teardown. A generation counter discards
// timer fires that outlive a Cancel, so a save scheduled for one chapter
// can never be misapplied after a chapter switch.
type Scheduler struct {
	mu         sync.Mutex
	timer      *time.Timer
	generation uint64

	lastCheckpointLen int
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// ScheduleSave (re)starts the idle timer. Any call before the timer fires
// cancels and restarts it: pure debounce, not throttle.
func (s *Scheduler) ScheduleSave(trigger func(), delay time.Duration) {
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}

	gen := s.generation
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if gen != s.generation {
			// Stale fire from before a Cancel; the session target changed.
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()

		trigger()
	})
}

// Cancel clears any pending timer and invalidates in-flight fires. Must be
// called on teardown after the final flush.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// FlushOnTeardown synchronously persists the current draft when it differs
// from the last-saved snapshot. This path is not debounced and runs exactly
// once per teardown.
func (s *Scheduler) FlushOnTeardown(current, lastSaved Snapshot, persist func(Snapshot) error) error {
	if current == lastSaved {
		return nil
	}
	return persist(current)
}

// CheckpointDue reports whether enough new content accumulated since the
// last checkpoint (length delta above threshold) to warrant a version
// snapshot, and if so advances the checkpoint mark.
func (s *Scheduler) CheckpointDue(contentLen, threshold int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	delta := contentLen - s.lastCheckpointLen
	if delta < 0 {
		delta = -delta
	}
	if delta <= threshold {
		return false
	}

	s.lastCheckpointLen = contentLen
	return true
}

// ResetCheckpoint re-bases the checkpoint mark, e.g. on chapter switch.
func (s *Scheduler) ResetCheckpoint(contentLen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCheckpointLen = contentLen
}
