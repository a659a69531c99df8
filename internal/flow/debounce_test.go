package flow

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var runs int32
	var lastBody atomic.Value
	job := func(body string) func() error {
		return func() error {
			atomic.AddInt32(&runs, 1)
			lastBody.Store(body)
			return nil
		}
	}

	d.Schedule("c1", models.ChannelWhatsApp, job("primeira"))
	time.Sleep(10 * time.Millisecond)
	d.Schedule("c1", models.ChannelWhatsApp, job("segunda"))
	time.Sleep(10 * time.Millisecond)
	d.Schedule("c1", models.ChannelWhatsApp, job("terceira"))

	time.Sleep(150 * time.Millisecond)

	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("burst triggered %d runs, want exactly 1", got)
	}
	if got := lastBody.Load(); got != "terceira" {
		t.Errorf("ran job for %q, want the last message's job", got)
	}
	if d.PendingCount() != 0 {
		t.Errorf("pending entries remain after fire: %d", d.PendingCount())
	}
}

func TestDebouncerIndependentKeys(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var runs int32
	job := func() error { atomic.AddInt32(&runs, 1); return nil }

	d.Schedule("c1", models.ChannelWhatsApp, job)
	d.Schedule("c1", models.ChannelTelegram, job)
	d.Schedule("c2", models.ChannelWhatsApp, job)

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 3 {
		t.Errorf("expected 3 independent runs, got %d", got)
	}
}

func TestDebouncerErrorDoesNotRearm(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var runs int32
	d.Schedule("c1", models.ChannelWhatsApp, func() error {
		atomic.AddInt32(&runs, 1)
		return errors.New("boom")
	})

	time.Sleep(120 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("failing job ran %d times, want 1 (no retry)", got)
	}
	if d.PendingCount() != 0 {
		t.Errorf("failing job re-armed the timer")
	}
}

func TestDebouncerSerializesPerKey(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)

	var mu sync.Mutex
	var active, maxActive int

	slowJob := func() error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(40 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}

	// Second arrival lands while the first job is still running.
	d.Schedule("c1", models.ChannelWhatsApp, slowJob)
	time.Sleep(20 * time.Millisecond)
	d.Schedule("c1", models.ChannelWhatsApp, slowJob)

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if maxActive != 1 {
		t.Errorf("jobs for the same key interleaved: max concurrency %d", maxActive)
	}
}

func TestDebouncerReclaimsRunState(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)

	var runs int32
	job := func() error {
		atomic.AddInt32(&runs, 1)
		return nil
	}

	d.Schedule("c1", models.ChannelWhatsApp, job)
	d.Schedule("c2", models.ChannelTelegram, job)
	d.Schedule("c3", models.ChannelWhatsApp, job)

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&runs) != 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&runs); got != 3 {
		t.Fatalf("ran %d jobs, want 3", got)
	}

	// Give the last finisher a moment to release its run state.
	for time.Now().Before(deadline) {
		d.mu.Lock()
		n := len(d.running)
		d.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t.Errorf("run states remain after all jobs finished: %d", len(d.running))
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var runs int32
	d.Schedule("c1", models.ChannelWhatsApp, func() error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	d.Cancel("c1", models.ChannelWhatsApp)

	time.Sleep(80 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 0 {
		t.Errorf("canceled job still ran %d times", got)
	}
}
