package querysource

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/target/opsdesk/internal/core"
)

// Limited throttles queries to a shared rate so concurrent pipeline workers stay within
// the data platform's governance limits.
type Limited struct {
	next    core.QuerySource
	limiter *rate.Limiter
}

var _ core.QuerySource = (*Limited)(nil)

// NewLimited wraps next with a token bucket of perSecond queries and the given burst.
// A non-positive perSecond means no limit.
func NewLimited(next core.QuerySource, perSecond float64, burst int) *Limited {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Query waits for a token, then delegates.
func (l *Limited) Query(ctx context.Context, q core.Query) ([]core.Row, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("query rate limit: %w", err)
	}
	return l.next.Query(ctx, q)
}
