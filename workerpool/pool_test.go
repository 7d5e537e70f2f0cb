package workerpool

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
)

func TestRunCallsEveryIndex(t *testing.T) {
	p := New(4)
	const n = 100
	var seen [n]int32
	err := p.Run(n, func(i int) error {
		atomic.AddInt32(&seen[i], 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, c := range seen {
		if c != 1 {
			t.Fatalf("index %d called %d times, want 1", i, c)
		}
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	const size = 3
	p := New(size)
	var current, max int32
	err := p.Run(50, func(i int) error {
		n := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&max)
			if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
				break
			}
		}
		atomic.AddInt32(&current, -1)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if max > size {
		t.Fatalf("observed concurrency %d exceeds pool size %d", max, size)
	}
}

func TestRunPropagatesFirstError(t *testing.T) {
	p := New(0)
	wantErr := errors.New("boom")
	err := p.Run(10, func(i int) error {
		if i == 7 {
			return wantErr
		}
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run returned %v, want %v", err, wantErr)
	}
}

func TestRunZeroIsNoOp(t *testing.T) {
	p := New(2)
	called := false
	if err := p.Run(0, func(i int) error { called = true; return nil }); err != nil {
		t.Fatalf("Run(0): %v", err)
	}
	if called {
		t.Fatal("Run(0, ...) should not invoke fn")
	}
}

func TestNewDefaultsToNumCPU(t *testing.T) {
	p := New(0)
	if p.Size() != runtime.NumCPU() {
		t.Fatalf("Size() = %d, want runtime.NumCPU() = %d", p.Size(), runtime.NumCPU())
	}
}
