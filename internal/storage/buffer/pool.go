// Package buffer provides the reusable transient buffers of the chunked store
// writer. A Pool hands out batch buffers sized to the configured chunk size;
// buffers return to the pool on Release and are reused by the next batch.
package buffer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
)

// Batch is one set of transient buffers for a batch of windows.
// Windows holds Len()*stride values, Labels holds Len() labels.
type Batch struct {
	Windows []float32
	Labels  []int32

	windows []float32
	labels  []int32
	pool    *Pool
}

// Len returns the number of windows the batch was acquired for.
func (b *Batch) Len() int {
	return len(b.Labels)
}

// Pool is a bounded pool of batch buffers. At most Capacity buffers exist at
// any time; Acquire blocks while all of them are in use.
type Pool struct {
	mu        sync.Mutex
	free      []*Batch
	tokens    chan struct{}
	chunkSize int
	stride    int
	capacity  int

	// Statistics
	acquireCount atomic.Int64
	releaseCount atomic.Int64
	allocCount   atomic.Int64
	inUse        atomic.Int64
}

// New creates a pool of at most capacity buffers, each holding chunkSize
// windows of stride float32 values.
func New(capacity, chunkSize, stride int) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{
		tokens:    make(chan struct{}, capacity),
		chunkSize: chunkSize,
		stride:    stride,
		capacity:  capacity,
	}
}

// BatchBytes returns the bytes one full-size buffer occupies.
func BatchBytes(chunkSize, stride int) int64 {
	return int64(chunkSize)*int64(stride)*4 + int64(chunkSize)*4
}

// Acquire returns a buffer for n windows, n <= chunk size.
func (p *Pool) Acquire(ctx context.Context, n int) (*Batch, error) {
	if n < 0 || n > p.chunkSize {
		return nil, errors.NewInvalidArgument("batch", n, fmt.Sprintf("exceeds chunk size %d", p.chunkSize))
	}

	select {
	case p.tokens <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	var b *Batch
	if last := len(p.free) - 1; last >= 0 {
		b = p.free[last]
		p.free[last] = nil
		p.free = p.free[:last]
	}
	p.mu.Unlock()

	if b == nil {
		b = &Batch{
			windows: make([]float32, p.chunkSize*p.stride),
			labels:  make([]int32, p.chunkSize),
			pool:    p,
		}
		p.allocCount.Add(1)
	}

	b.Windows = b.windows[:n*p.stride]
	b.Labels = b.labels[:n]
	p.acquireCount.Add(1)
	p.inUse.Add(1)
	return b, nil
}

// Release returns b to the pool. Releasing nil is a no-op.
func (p *Pool) Release(b *Batch) {
	if b == nil {
		return
	}
	if b.pool != p {
		panic("buffer: batch released to a foreign pool")
	}

	b.Windows = nil
	b.Labels = nil

	p.mu.Lock()
	p.free = append(p.free, b)
	p.mu.Unlock()

	p.releaseCount.Add(1)
	p.inUse.Add(-1)
	<-p.tokens
}

// With acquires a buffer for n windows, calls fn and releases the buffer on
// every return path of fn, including a panic.
func (p *Pool) With(ctx context.Context, n int, fn func(*Batch) error) error {
	b, err := p.Acquire(ctx, n)
	if err != nil {
		return err
	}
	defer p.Release(b)
	return fn(b)
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	idle := len(p.free)
	p.mu.Unlock()

	return PoolStats{
		Capacity:     p.capacity,
		Idle:         idle,
		InUse:        int(p.inUse.Load()),
		AcquireCount: p.acquireCount.Load(),
		ReleaseCount: p.releaseCount.Load(),
		AllocCount:   p.allocCount.Load(),
	}
}

// PoolStats holds pool statistics.
type PoolStats struct {
	Capacity     int
	Idle         int
	InUse        int
	AcquireCount int64
	ReleaseCount int64
	AllocCount   int64
}
