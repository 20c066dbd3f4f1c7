package usecases

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bookwise-inc/bookwise/internal/domain/subscription"
)

// forEachSubscription calls fn for every subscription with at most workers in
// flight. fn handles its own errors; the batch stops early only when ctx ends.
func forEachSubscription(ctx context.Context, workers int, subs []*subscription.Subscription, fn func(ctx context.Context, sub *subscription.Subscription)) error {
	if workers <= 1 {
		for _, sub := range subs {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(ctx, sub)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, sub := range subs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(gctx, sub)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// uniqueByID keeps the first occurrence of each subscription ID.
func uniqueByID(lists ...[]*subscription.Subscription) []*subscription.Subscription {
	seen := make(map[uint]struct{})
	var out []*subscription.Subscription
	for _, list := range lists {
		for _, sub := range list {
			if _, ok := seen[sub.ID()]; ok {
				continue
			}
			seen[sub.ID()] = struct{}{}
			out = append(out, sub)
		}
	}
	return out
}
