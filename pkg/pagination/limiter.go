package pagination

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// PermitPool is a counting limiter shared by every fetch in one batch.
// It records the highest number of simultaneous holders.
type PermitPool struct {
	sem  *semaphore.Weighted
	size int

	mu   sync.Mutex
	held int
	peak int
}

// NewPermitPool creates a pool with size permits. size < 1 is treated as 1.
func NewPermitPool(size int) *PermitPool {
	if size < 1 {
		size = 1
	}
	return &PermitPool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Acquire blocks until a permit is free or ctx is done.
func (p *PermitPool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	p.mu.Lock()
	p.held++
	if p.held > p.peak {
		p.peak = p.held
	}
	p.mu.Unlock()

	fetchInflight.Inc()
	return nil
}

// Release returns a permit. It must be called once per successful Acquire.
func (p *PermitPool) Release() {
	p.mu.Lock()
	p.held--
	p.mu.Unlock()

	fetchInflight.Dec()
	p.sem.Release(1)
}

// Size returns the number of permits.
func (p *PermitPool) Size() int {
	return p.size
}

// Held returns the number of permits currently held.
func (p *PermitPool) Held() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held
}

// Peak returns the highest number of permits held at once.
func (p *PermitPool) Peak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}
