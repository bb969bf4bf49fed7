package dispatch

import (
	"sync"
	"testing"
)

func TestSubmitPreservesPerChatOrder(t *testing.T) {
	d := NewDispatcher(128)

	var mu sync.Mutex
	got := make(map[int64][]int)

	for chat := int64(1); chat <= 3; chat++ {
		for i := 0; i < 50; i++ {
			chat, i := chat, i
			d.Submit(chat, func() {
				mu.Lock()
				got[chat] = append(got[chat], i)
				mu.Unlock()
			})
		}
	}

	d.Shutdown()

	for chat := int64(1); chat <= 3; chat++ {
		seq := got[chat]
		if len(seq) != 50 {
			t.Fatalf("chat %d: expected 50 tasks, got %d", chat, len(seq))
		}
		for i, v := range seq {
			if v != i {
				t.Fatalf("chat %d: order violated at %d: %v", chat, i, seq)
			}
		}
	}
}

func TestSubmitAfterShutdownDropped(t *testing.T) {
	d := NewDispatcher(8)
	d.Shutdown()

	ran := false
	d.Submit(1, func() { ran = true })
	if ran {
		t.Fatalf("task must not run after shutdown")
	}
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	d := NewDispatcher(8)

	done := make(chan struct{})
	d.Submit(1, func() { panic("boom") })
	d.Submit(1, func() { close(done) })

	d.Shutdown()

	select {
	case <-done:
	default:
		t.Fatalf("worker did not survive panic")
	}
}
