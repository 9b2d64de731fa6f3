package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"trading-advisor-bot/internal/market"
)

// Priority orders work classes. Lower value dequeues first.
type Priority int

const (
	PriorityAlert Priority = iota
	PrioritySignal
	PriorityScreening
	PriorityAutoPlan
	priorityCount
)

// Kind names a work class.
type Kind string

const (
	KindAlertCheck         Kind = "alert_check"
	KindSignalCheck        Kind = "signal_check"
	KindScheduledScreening Kind = "scheduled_screening"
	KindAutoPlan           Kind = "auto_plan"
)

// Per-kind execution deadlines.
var workDeadlines = map[Kind]time.Duration{
	KindAlertCheck:         60 * time.Second,
	KindSignalCheck:        60 * time.Second,
	KindScheduledScreening: 180 * time.Second,
	KindAutoPlan:           600 * time.Second,
}

// WorkItem is one unit of queued work.
type WorkItem struct {
	ID        string
	Kind      Kind
	Priority  Priority
	ChatID    int64
	Timeframe market.Timeframe
	MinScore  float64
	TopK      int
	Symbols   []string
	Enqueued  time.Time
}

// newWorkItem stamps ID and enqueue time.
func newWorkItem(kind Kind, priority Priority) WorkItem {
	return WorkItem{
		ID:       uuid.NewString(),
		Kind:     kind,
		Priority: priority,
		Enqueued: time.Now().UTC(),
	}
}

// Deadline returns the execution budget for the item.
func (w WorkItem) Deadline() time.Duration {
	if d, ok := workDeadlines[w.Kind]; ok {
		return d
	}
	return 60 * time.Second
}

// workQueue is a bounded multi-producer queue with strict priority classes
// and FIFO order within a class. Producers never block: Enqueue reports false
// when the queue is full and the item is dropped.
type workQueue struct {
	mu      sync.Mutex
	items   [priorityCount][]WorkItem
	size    int
	cap     int
	notify  chan struct{}
	dropped int64
}

func newWorkQueue(capacity int) *workQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &workQueue{
		cap:    capacity,
		notify: make(chan struct{}, capacity),
	}
}

// Enqueue adds an item, dropping it when the queue is full.
func (q *workQueue) Enqueue(item WorkItem) bool {
	q.mu.Lock()
	if q.size >= q.cap {
		q.dropped++
		q.mu.Unlock()
		return false
	}
	q.items[item.Priority] = append(q.items[item.Priority], item)
	q.size++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Dequeue blocks until an item is available or the context ends. The highest
// priority class with queued work wins.
func (q *workQueue) Dequeue(ctx context.Context) (WorkItem, bool) {
	for {
		q.mu.Lock()
		for p := Priority(0); p < priorityCount; p++ {
			if len(q.items[p]) > 0 {
				item := q.items[p][0]
				q.items[p] = q.items[p][1:]
				q.size--
				q.mu.Unlock()
				return item, true
			}
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return WorkItem{}, false
		}
	}
}

// Len returns the current depth.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped returns the count of items rejected because the queue was full.
func (q *workQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
