package sandbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("sandbox pool is closed")
	ErrTimeout    = errors.New("sandbox acquisition timeout")
)

// Pool hands out warm runtimes over one module root.
//
// Module caches are per runtime and Release always resets the runtime before
// it goes back to the idle set. The next run therefore starts with a fresh VM
// and an empty module cache: it re-reads every module from disk and sees no
// globals or module state left by earlier runs.
type Pool struct {
	config Config
	opts   []Option
	logger *zap.Logger

	idle     chan *Runtime
	size     int
	wait     time.Duration
	recycled atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// PoolStats is a snapshot of pool occupancy.
type PoolStats struct {
	Size   int
	Idle   int
	InUse  int
	Closed bool
	// Recycled counts runtimes replaced after a failed reset.
	Recycled uint64
}

// NewPool creates size runtimes up front. The runtime options also apply to
// runtimes created later to replace broken ones.
func NewPool(config Config, size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		config: config,
		opts:   opts,
		logger: zap.NewNop(),
		idle:   make(chan *Runtime, size),
		size:   size,
		wait:   5 * time.Second,
	}

	for i := 0; i < size; i++ {
		rt, err := New(config, opts...)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if i == 0 {
			pool.logger = rt.baseLogger.With(zap.String("pool_root", rt.config.Root))
		}
		pool.idle <- rt
	}

	pool.logger.Debug("Created sandbox pool", zap.Int("size", size))
	return pool, nil
}

// Acquire takes an idle runtime, waiting until one is released, ctx is done
// or the pool's wait time passes.
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.wait)
	defer timer.Stop()

	select {
	case rt := <-p.idle:
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Release resets rt, dropping its VM and module cache, and returns it to the
// idle set. A runtime that cannot be reset is closed and replaced.
func (p *Pool) Release(rt *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return rt.Close()
	}

	if err := rt.Reset(); err != nil {
		rt.Close()
		p.logger.Warn("Sandbox reset failed, replacing runtime", zap.String("runtime", rt.id), zap.Error(err))
		if fresh, nerr := New(p.config, p.opts...); nerr == nil {
			p.recycled.Add(1)
			p.idle <- fresh
		} else {
			p.logger.Error("Failed to replace sandbox runtime", zap.Error(nerr))
		}
		return err
	}

	select {
	case p.idle <- rt:
		return nil
	default:
		// not one of ours
		return rt.Close()
	}
}

// Run executes an entry module on a pooled runtime
func (p *Pool) Run(ctx context.Context, entry string) (*Result, error) {
	rt, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(rt)

	return rt.Run(ctx, entry)
}

// Close closes the pool and every idle runtime. Runtimes still in use are
// closed when they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.idle)

	for rt := range p.idle {
		rt.Close()
	}

	p.logger.Debug("Closed sandbox pool")
	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	idle := len(p.idle)
	return PoolStats{
		Size:     p.size,
		Idle:     idle,
		InUse:    p.size - idle,
		Closed:   p.closed,
		Recycled: p.recycled.Load(),
	}
}
