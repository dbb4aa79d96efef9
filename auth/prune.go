package auth

import (
	"context"
	"time"
)

// startPruner deletes expired sessions every PruneInterval until Close.
// Reads already hide expired sessions; the sweep only reclaims storage.
func (a *API) startPruner(p Pruner) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.cfg.PruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), a.cfg.PruneInterval)
				n, err := a.prune(ctx, p)
				cancel()
				if err != nil {
					a.log.Error().Err(err).Msg("prune expired sessions")
					continue
				}
				if n > 0 {
					a.log.Debug().Int64("removed", n).Msg("pruned expired sessions")
				}
			}
		}
	}()
}

func (a *API) prune(ctx context.Context, p Pruner) (int64, error) {
	n, err := p.PruneExpired(ctx, a.now().Add(-a.ttl))
	if err != nil {
		return 0, err
	}
	a.metrics.pruned(n)
	return n, nil
}

func (a *API) pruneExpiredSessionsInternal(ctx context.Context) (int64, error) {
	if a.ttl <= 0 {
		return 0, nil
	}
	p, ok := a.sessions.(Pruner)
	if !ok {
		return 0, nil
	}
	return a.prune(ctx, p)
}
