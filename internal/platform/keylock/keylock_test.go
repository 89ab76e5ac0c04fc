package keylock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryLocker_Exclusive(t *testing.T) {
	l := NewMemoryLocker()
	var mu sync.Mutex
	inside, maxInside := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "doctor:101:2025-07-05")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most 1 holder, saw %d", maxInside)
	}
	if len(l.locks) != 0 {
		t.Errorf("expected entries cleaned up, got %d", len(l.locks))
	}
}

func TestMemoryLocker_IndependentKeys(t *testing.T) {
	l := NewMemoryLocker()
	a, _ := l.Lock(context.Background(), "a")
	defer a()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	b, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("independent key blocked: %v", err)
	}
	b()
}

func TestMemoryLocker_Timeout(t *testing.T) {
	l := NewMemoryLocker()
	unlock, _ := l.Lock(context.Background(), "k")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Lock(ctx, "k")
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
}

func TestMemoryLocker_Cancelled(t *testing.T) {
	l := NewMemoryLocker()
	unlock, _ := l.Lock(context.Background(), "k")
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Lock(ctx, "k")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryLocker_UnlockTwice(t *testing.T) {
	l := NewMemoryLocker()
	unlock, _ := l.Lock(context.Background(), "k")
	unlock()
	unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	again, err := l.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("relock after double unlock: %v", err)
	}
	again()
}

type recordingLocker struct {
	inner  Locker
	mu     sync.Mutex
	order  []string
	failOn string
}

func (r *recordingLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if key == r.failOn {
		return nil, errors.New("refused")
	}
	r.mu.Lock()
	r.order = append(r.order, key)
	r.mu.Unlock()
	return r.inner.Lock(ctx, key)
}

func TestLockMany_SortedAndDeduped(t *testing.T) {
	r := &recordingLocker{inner: NewMemoryLocker()}
	unlock, err := LockMany(context.Background(), r, "b", "a", "b", "c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unlock()

	want := []string{"a", "b", "c"}
	if len(r.order) != len(want) {
		t.Fatalf("got %v, want %v", r.order, want)
	}
	for i := range want {
		if r.order[i] != want[i] {
			t.Fatalf("got %v, want %v", r.order, want)
		}
	}
}

func TestLockMany_ReleasesOnFailure(t *testing.T) {
	mem := NewMemoryLocker()
	r := &recordingLocker{inner: mem, failOn: "c"}
	if _, err := LockMany(context.Background(), r, "a", "b", "c"); err == nil {
		t.Fatal("expected error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	unlock, err := LockMany(ctx, mem, "a", "b")
	if err != nil {
		t.Fatalf("keys still held after failed LockMany: %v", err)
	}
	unlock()
}

func TestNewRedisLocker_Defaults(t *testing.T) {
	l := NewRedisLocker(nil, 0, " ")
	if l.ttl != 10*time.Second {
		t.Errorf("expected default ttl, got %v", l.ttl)
	}
	if l.prefix != "lock" {
		t.Errorf("expected default prefix, got %q", l.prefix)
	}
}

func TestNewRedisClient_BadURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "not-a-url"); err == nil {
		t.Error("expected error for invalid redis url")
	}
}
