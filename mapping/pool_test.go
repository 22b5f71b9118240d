package mapping

import (
	"context"
	"testing"
	"time"
)

func TestViewAliasesBytes(t *testing.T) {
	p, err := New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	view, err := p.View(0, 16)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	view[0] = 0x42
	if p.Bytes()[0] != 0x42 {
		t.Fatal("View does not alias the pool's backing memory")
	}
}

func TestViewRejectsOutOfRange(t *testing.T) {
	p, err := New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	if _, err := p.View(4000, 200); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestWaitDrainedReturnsImmediatelyWhenEmpty(t *testing.T) {
	p, err := New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.WaitDrained(ctx); err != nil {
		t.Fatalf("WaitDrained: %v", err)
	}
}

func TestWaitDrainedWakesOnCloseMapping(t *testing.T) {
	p, err := New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	p.Open()
	p.Open()
	go func() {
		time.Sleep(2 * time.Millisecond)
		p.CloseMapping()
		p.CloseMapping()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.WaitDrained(ctx); err != nil {
		t.Fatalf("WaitDrained: %v", err)
	}
	if p.Active() != 0 {
		t.Fatalf("Active() = %d, want 0", p.Active())
	}
}

func TestWaitDrainedTimesOutWithLiveMapping(t *testing.T) {
	p, err := New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	p.Open()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.WaitDrained(ctx); err == nil {
		t.Fatal("expected WaitDrained to time out with a live mapping")
	}
}
