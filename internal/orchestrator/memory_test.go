package orchestrator

import (
	"sync"
	"testing"
)

// shouldNotify mirrors the worker's read-compare step.
func shouldNotify(m *SignalMemory, chatID int64, symbol, signal string) bool {
	key := m.Acquire(chatID, symbol)
	defer key.Release()

	if signal == "HOLD" || key.Last() == signal {
		return false
	}
	key.Set(signal)
	return true
}

func TestSignalMemoryDedupSequence(t *testing.T) {
	m := NewSignalMemory()

	steps := []struct {
		signal string
		notify bool
	}{
		{"HOLD", false}, // never notified
		{"BUY", true},   // first actionable signal
		{"BUY", false},  // unchanged, suppressed
		{"SELL", true},  // flip notifies
		{"SELL", false},
		{"BUY", true}, // flip back notifies again
	}
	for i, step := range steps {
		if got := shouldNotify(m, 42, "BTCUSDT", step.signal); got != step.notify {
			t.Errorf("step %d (%s): notify = %v, want %v", i, step.signal, got, step.notify)
		}
	}
}

func TestSignalMemoryKeysAreIndependent(t *testing.T) {
	m := NewSignalMemory()

	if !shouldNotify(m, 1, "BTCUSDT", "BUY") {
		t.Error("first BUY for chat 1 suppressed")
	}
	if !shouldNotify(m, 2, "BTCUSDT", "BUY") {
		t.Error("chat 2 must not share chat 1's memory")
	}
	if !shouldNotify(m, 1, "ETHUSDT", "BUY") {
		t.Error("a different symbol must not share the memory")
	}
}

func TestSignalMemoryFailedSendLeavesStateUntouched(t *testing.T) {
	m := NewSignalMemory()

	// A worker that fails delivery releases without Set; the next check
	// must notify again.
	key := m.Acquire(7, "SOLUSDT")
	if key.Last() != "" {
		t.Fatal("fresh key has a last signal")
	}
	key.Release()

	if !shouldNotify(m, 7, "SOLUSDT", "BUY") {
		t.Error("signal suppressed even though the first send never recorded")
	}
}

func TestSignalMemoryConcurrentAcquire(t *testing.T) {
	m := NewSignalMemory()

	var wg sync.WaitGroup
	notified := 0
	var mu sync.Mutex

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if shouldNotify(m, 9, "BTCUSDT", "BUY") {
				mu.Lock()
				notified++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if notified != 1 {
		t.Errorf("%d workers notified for the same unchanged signal, want exactly 1", notified)
	}
}
