package buffer

import (
	"context"
	"errors"
	"testing"
	"time"

	mderrors "github.com/mohammed1916/marine-anomaly/internal/errors"
	testutil "github.com/mohammed1916/marine-anomaly/internal/testing"
)

func TestPool_AcquireRelease(t *testing.T) {
	p := New(1, 100, 10)

	b, err := p.Acquire(context.Background(), 40)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if b.Len() != 40 || len(b.Windows) != 400 {
		t.Errorf("expected 40 windows / 400 values, got %d / %d", b.Len(), len(b.Windows))
	}
	p.Release(b)

	b2, err := p.Acquire(context.Background(), 100)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(b2.Windows) != 1000 {
		t.Errorf("expected full-size buffer, got %d values", len(b2.Windows))
	}
	p.Release(b2)

	stats := p.Stats()
	if stats.AllocCount != 1 {
		t.Errorf("expected buffer reuse (1 alloc), got %d", stats.AllocCount)
	}
	if stats.AcquireCount != 2 || stats.ReleaseCount != 2 {
		t.Errorf("unexpected counts %+v", stats)
	}
	if stats.InUse != 0 || stats.Idle != 1 {
		t.Errorf("expected 0 in use / 1 idle, got %+v", stats)
	}
}

func TestPool_AcquireTooLarge(t *testing.T) {
	p := New(1, 10, 5)
	if _, err := p.Acquire(context.Background(), 11); !mderrors.Is(err, mderrors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestPool_AcquireBlocksAtCapacity(t *testing.T) {
	p := New(1, 10, 5)

	b, err := p.Acquire(context.Background(), 10)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded while pool exhausted, got %v", err)
	}

	p.Release(b)
	b, err = p.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	p.Release(b)
}

func TestPool_WithReleasesOnError(t *testing.T) {
	p := New(1, 10, 5)
	boom := errors.New("boom")

	err := p.With(context.Background(), 5, func(b *Batch) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if s := p.Stats(); s.InUse != 0 {
		t.Errorf("buffer not released: %+v", s)
	}
}

func TestPool_WithReleasesOnPanic(t *testing.T) {
	p := New(1, 10, 5)

	func() {
		defer func() { _ = recover() }()
		_ = p.With(context.Background(), 5, func(b *Batch) error {
			panic("kernel fault")
		})
	}()

	if s := p.Stats(); s.InUse != 0 {
		t.Errorf("buffer not released after panic: %+v", s)
	}
}

func TestPool_ReleaseForeignPanics(t *testing.T) {
	a := New(1, 10, 5)
	b := New(1, 10, 5)

	batch, err := a.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer a.Release(batch)

	defer func() {
		if recover() == nil {
			t.Error("expected panic releasing to foreign pool")
		}
	}()
	b.Release(batch)
}

func TestPool_Concurrent(t *testing.T) {
	p := New(3, 64, 4)
	h := testutil.NewTestHelper(t)

	for w := 0; w < 10; w++ {
		id := w
		h.Go(func() error {
			for i := 0; i < 50; i++ {
				err := p.With(context.Background(), 64, func(b *Batch) error {
					for j := range b.Labels {
						b.Labels[j] = int32(id)
					}
					for j := range b.Labels {
						if b.Labels[j] != int32(id) {
							return errors.New("buffer shared between holders")
						}
					}
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	h.Wait()

	stats := p.Stats()
	if stats.AllocCount > 3 {
		t.Errorf("expected at most 3 allocations, got %d", stats.AllocCount)
	}
	if stats.InUse != 0 {
		t.Errorf("expected none in use, got %d", stats.InUse)
	}
}

func TestBatchBytes(t *testing.T) {
	if got := BatchBytes(1000, 640); got != 1000*640*4+1000*4 {
		t.Errorf("BatchBytes() = %d", got)
	}
}
