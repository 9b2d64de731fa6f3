package orchestrator

import (
	"context"
	"testing"
	"time"
)

func TestQueuePriorityOrdering(t *testing.T) {
	q := newWorkQueue(16)

	q.Enqueue(newWorkItem(KindAutoPlan, PriorityAutoPlan))
	q.Enqueue(newWorkItem(KindScheduledScreening, PriorityScreening))
	q.Enqueue(newWorkItem(KindSignalCheck, PrioritySignal))
	q.Enqueue(newWorkItem(KindAlertCheck, PriorityAlert))

	ctx := context.Background()
	wantOrder := []Kind{KindAlertCheck, KindSignalCheck, KindScheduledScreening, KindAutoPlan}
	for i, want := range wantOrder {
		item, ok := q.Dequeue(ctx)
		if !ok {
			t.Fatalf("dequeue %d failed", i)
		}
		if item.Kind != want {
			t.Errorf("dequeue %d = %s, want %s", i, item.Kind, want)
		}
	}
}

func TestQueueFIFOWithinClass(t *testing.T) {
	q := newWorkQueue(16)

	first := newWorkItem(KindSignalCheck, PrioritySignal)
	second := newWorkItem(KindSignalCheck, PrioritySignal)
	q.Enqueue(first)
	q.Enqueue(second)

	ctx := context.Background()
	item, _ := q.Dequeue(ctx)
	if item.ID != first.ID {
		t.Error("items within a priority class must dequeue in FIFO order")
	}
	item, _ = q.Dequeue(ctx)
	if item.ID != second.ID {
		t.Error("second item lost its place in the class")
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := newWorkQueue(2)

	if !q.Enqueue(newWorkItem(KindAlertCheck, PriorityAlert)) {
		t.Fatal("first enqueue rejected")
	}
	if !q.Enqueue(newWorkItem(KindAlertCheck, PriorityAlert)) {
		t.Fatal("second enqueue rejected")
	}
	if q.Enqueue(newWorkItem(KindAlertCheck, PriorityAlert)) {
		t.Error("enqueue into a full queue must report false")
	}
	if got := q.Dropped(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
	if got := q.Len(); got != 2 {
		t.Errorf("len = %d, want 2", got)
	}
}

func TestQueueDequeueRespectsContext(t *testing.T) {
	q := newWorkQueue(4)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := q.Dequeue(ctx); ok {
		t.Error("dequeue from an empty queue returned an item")
	}
}

func TestQueueWakesBlockedConsumer(t *testing.T) {
	q := newWorkQueue(4)

	done := make(chan WorkItem, 1)
	go func() {
		item, ok := q.Dequeue(context.Background())
		if ok {
			done <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	want := newWorkItem(KindAlertCheck, PriorityAlert)
	q.Enqueue(want)

	select {
	case item := <-done:
		if item.ID != want.ID {
			t.Error("consumer woke with the wrong item")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked consumer never woke after enqueue")
	}
}

func TestWorkItemDeadlines(t *testing.T) {
	tests := []struct {
		kind Kind
		want time.Duration
	}{
		{KindAlertCheck, 60 * time.Second},
		{KindSignalCheck, 60 * time.Second},
		{KindScheduledScreening, 180 * time.Second},
		{KindAutoPlan, 600 * time.Second},
		{Kind("unknown"), 60 * time.Second},
	}
	for _, tt := range tests {
		item := WorkItem{Kind: tt.kind}
		if got := item.Deadline(); got != tt.want {
			t.Errorf("Deadline(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
