package transport

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestInFlightRegistryAcquireIsExclusive(t *testing.T) {
	r := NewInFlightRegistry()

	if !r.Acquire("conv-1", func() {}) {
		t.Fatal("first Acquire should succeed")
	}
	if r.Acquire("conv-1", func() {}) {
		t.Error("second Acquire for the same conversation should fail")
	}
	if !r.Acquire("conv-2", func() {}) {
		t.Error("Acquire for another conversation should succeed")
	}
	if !r.Active("conv-1") {
		t.Error("conv-1 should be active")
	}

	r.Release("conv-1")
	if r.Active("conv-1") {
		t.Error("conv-1 should not be active after Release")
	}
	if !r.Acquire("conv-1", func() {}) {
		t.Error("Acquire after Release should succeed")
	}
}

func TestInFlightRegistryCancelKeepsSlot(t *testing.T) {
	r := NewInFlightRegistry()

	cancelled := false
	r.Acquire("conv-1", func() { cancelled = true })

	if !r.Cancel("conv-1") {
		t.Error("Cancel should return true for a registered ID")
	}
	if !cancelled {
		t.Error("cancel function should have been called")
	}
	if !r.Active("conv-1") {
		t.Error("slot should stay held until Release")
	}
	if r.Cancel("conv-unknown") {
		t.Error("Cancel should return false for unknown ID")
	}
}

func TestInFlightRegistryCancelAll(t *testing.T) {
	r := NewInFlightRegistry()
	var n atomic.Int32
	for _, id := range []string{"a", "b", "c"} {
		r.Acquire(id, func() { n.Add(1) })
	}

	if got := r.CancelAll(); got != 3 {
		t.Errorf("CancelAll() = %d, want 3", got)
	}
	if n.Load() != 3 {
		t.Errorf("cancel called %d times, want 3", n.Load())
	}
}

func TestInFlightRegistryConcurrentAcquire(t *testing.T) {
	r := NewInFlightRegistry()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Acquire("conv", func() {}) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("%d goroutines acquired the slot, want exactly 1", wins.Load())
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}
