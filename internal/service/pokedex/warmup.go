package pokedex

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kapu/pokedex-go/internal/constants"
	"github.com/kapu/pokedex-go/internal/domain"
	"github.com/kapu/pokedex-go/internal/service/cache"
	"github.com/kapu/pokedex-go/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// WarmUpReport summarizes a prefetch run.
type WarmUpReport struct {
	Requested int
	Resolved  int
	Failed    int
	Elapsed   time.Duration
}

// WarmUp prefetches pokemon records with bounded concurrency. Requests go
// through the cache, so they coalesce with anything the UI asks for meanwhile.
func (p *Pokedex) WarmUp(ctx context.Context, ids []int) WarmUpReport {
	started := time.Now()
	report := WarmUpReport{Requested: len(ids)}
	if len(ids) == 0 {
		return report
	}

	var resolved, failed atomic.Int64
	wp := pool.New().WithMaxGoroutines(p.concurrency)
	for _, id := range ids {
		wp.Go(func() {
			if _, err := p.pokemon.Load(ctx, cache.IDKey(domain.KindPokemon, id)); err != nil {
				failed.Add(1)
				if !errors.Is(err, errors.KindNotFound) {
					p.logger.Debug("Prefetch failed", zap.Int("id", id), zap.Error(err))
				}
				return
			}
			resolved.Add(1)
		})
	}
	wp.Wait()

	report.Resolved = int(resolved.Load())
	report.Failed = int(failed.Load())
	report.Elapsed = time.Since(started)

	p.logger.Info("Cache warm-up completed",
		zap.Int("requested", report.Requested),
		zap.Int("resolved", report.Resolved),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report
}

// FirstPageIDs returns the ids of the first n catalog entries, the set the
// grid shows first. n <= 0 means the default prefetch count.
func FirstPageIDs(n int) []int {
	if n <= 0 {
		n = constants.PrefetchConfig.Count
	}
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}
