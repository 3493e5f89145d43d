package distributed

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/objectfs/amrmeta/pkg/types"
)

// RankFunc is the body executed by every rank of a group.
type RankFunc func(ctx context.Context, ctrl types.Controller) error

// Run starts size ranks of a fresh Group, one goroutine each, and waits for
// all of them. The first rank error cancels the shared context so that
// peers blocked in a collective fail instead of waiting forever; that first
// error is returned.
func Run(ctx context.Context, size int, fn RankFunc) error {
	group, err := NewGroup(&GroupConfig{Size: size})
	if err != nil {
		return err
	}
	return RunGroup(ctx, group, fn)
}

// RunGroup is Run on an existing group.
func RunGroup(ctx context.Context, group *Group, fn RankFunc) error {
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for r := 0; r < group.Size(); r++ {
		member := group.Member(r)
		p.Go(func(ctx context.Context) error {
			return fn(ctx, member)
		})
	}
	return p.Wait()
}
