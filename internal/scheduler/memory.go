package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// MemoryTimer is an in-process Timer for single-instance deployments and tests.
// Moved or disarmed keys leave stale heap entries that are dropped when they surface.
type MemoryTimer struct {
	mu    sync.Mutex
	armed map[string]time.Time
	queue timerHeap
}

// NewMemoryTimer creates an empty in-process timer.
func NewMemoryTimer() *MemoryTimer {
	return &MemoryTimer{armed: make(map[string]time.Time)}
}

// Arm implements Timer.
func (t *MemoryTimer) Arm(_ context.Context, key string, fireAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.armed[key]; ok && cur.Equal(fireAt) {
		return nil
	}
	t.armed[key] = fireAt
	heap.Push(&t.queue, timerEntry{key: key, fireAt: fireAt})
	return nil
}

// Disarm implements Timer.
func (t *MemoryTimer) Disarm(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.armed, key)
	return nil
}

// Due implements Timer.
func (t *MemoryTimer) Due(_ context.Context, now time.Time, limit int) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var keys []string
	for t.queue.Len() > 0 && len(keys) < limit {
		next := t.queue[0]
		if next.fireAt.After(now) {
			break
		}
		heap.Pop(&t.queue)
		current, ok := t.armed[next.key]
		if !ok || !current.Equal(next.fireAt) {
			continue
		}
		delete(t.armed, next.key)
		keys = append(keys, next.key)
	}
	return keys, nil
}

// Len returns the number of armed keys.
func (t *MemoryTimer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.armed)
}

type timerEntry struct {
	key    string
	fireAt time.Time
}

type timerHeap []timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].fireAt.Before(h[j].fireAt) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) { *h = append(*h, x.(timerEntry)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
