package session

import "time"

// elapsedTimer accumulates wall-clock time between start/pause pairs.
// It advances only while running; pausing freezes the reading exactly.
// Not safe for concurrent use — callers hold the machine lock.
type elapsedTimer struct {
	now         func() time.Time
	running     bool
	startedAt   time.Time
	accumulated time.Duration
}

func (t *elapsedTimer) start() {
	t.accumulated = 0
	t.startedAt = t.now()
	t.running = true
}

func (t *elapsedTimer) pause() {
	if !t.running {
		return
	}
	t.accumulated += t.now().Sub(t.startedAt)
	t.running = false
}

func (t *elapsedTimer) resume() {
	if t.running {
		return
	}
	t.startedAt = t.now()
	t.running = true
}

func (t *elapsedTimer) reset() {
	t.running = false
	t.accumulated = 0
}

func (t *elapsedTimer) elapsed() time.Duration {
	if t.running {
		return t.accumulated + t.now().Sub(t.startedAt)
	}
	return t.accumulated
}
