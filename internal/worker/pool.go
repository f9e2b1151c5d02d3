// Package worker runs a fixed number of workers over a shared list of
// targets. Each worker pulls the next unclaimed index from an atomic cursor
// until the list is exhausted, so no ordering is guaranteed across workers.
package worker

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Pool bounds concurrency and paces work through an optional rate limiter.
type Pool struct {
	workers int
	limiter *rate.Limiter
}

// New constructs a pool of n workers. perSecond caps the aggregate work rate;
// zero or negative means unpaced.
func New(n int, perSecond float64) *Pool {
	if n <= 0 {
		n = 1
	}
	var limiter *rate.Limiter
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), n)
	}
	return &Pool{workers: n, limiter: limiter}
}

// Run calls fn for every index in [0, total). Worker errors do not stop the
// pool; fn is expected to absorb per-item failures and report them through
// its own channels. Run returns early only when ctx is cancelled.
func (p *Pool) Run(ctx context.Context, total int, fn func(ctx context.Context, i int)) error {
	if total <= 0 {
		return nil
	}
	var cursor atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < p.workers; w++ {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1)) - 1
				if i >= total {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				if p.limiter != nil {
					if err := p.limiter.Wait(gctx); err != nil {
						return err
					}
				}
				fn(gctx, i)
			}
		})
	}
	return g.Wait()
}
