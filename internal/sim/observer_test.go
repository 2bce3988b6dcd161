package sim

import "testing"

func TestHubCoalescesNotifications(t *testing.T) {
	h := newHub()
	ch, cancel := h.subscribe()

	h.notify()
	h.notify()
	h.notify()

	<-ch
	select {
	case <-ch:
		t.Fatal("expected notifications to coalesce")
	default:
	}

	cancel()
	cancel()
	if _, open := <-ch; open {
		t.Fatal("channel should be closed after cancel")
	}
	h.mu.Lock()
	n := len(h.subs)
	h.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no watchers, got %d", n)
	}
}

func TestHubClose(t *testing.T) {
	h := newHub()
	a, cancelA := h.subscribe()
	h.close()
	if _, open := <-a; open {
		t.Fatal("watcher not closed")
	}
	cancelA()

	b, _ := h.subscribe()
	if _, open := <-b; open {
		t.Fatal("subscription after close should be closed")
	}
	h.notify()
}
