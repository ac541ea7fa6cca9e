package comm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RunLocal runs fn on n in-process ranks, one goroutine each, and returns
// the first error. A failing rank cancels ctx for the others. A rank that
// finishes cleanly leaves the group at once, so a peer still waiting on it
// fails instead of hanging.
func RunLocal(ctx context.Context, n int, fn func(ctx context.Context, g Group) error) error {
	if n < 1 {
		return fmt.Errorf("%w: cannot run %d ranks", ErrNoGroup, n)
	}
	var (
		groups  = NewLocalGroups(n)
		eg, gtx = errgroup.WithContext(ctx)
	)
	for _, lg := range groups {
		eg.Go(func() error {
			if err := fn(gtx, lg); err != nil {
				Logger.Error("rank failed", "rank", lg.Rank(), "err", err)
				return fmt.Errorf("rank %d: %w", lg.Rank(), err)
			}
			return lg.Close()
		})
	}
	err := eg.Wait()
	for _, lg := range groups {
		lg.Close()
	}
	return err
}
