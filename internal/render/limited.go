package render

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limited caps the number of concurrent renders of the wrapped engine.
type Limited struct {
	engine Engine
	sem    *semaphore.Weighted
}

// NewLimited wraps engine so at most n renders run at once.
func NewLimited(engine Engine, n int64) *Limited {
	if n < 1 {
		n = 1
	}
	return &Limited{engine: engine, sem: semaphore.NewWeighted(n)}
}

// Name implements Engine.
func (l *Limited) Name() string { return l.engine.Name() }

// Unwrap returns the wrapped engine.
func (l *Limited) Unwrap() Engine { return l.engine }

// Render waits for a free slot, honouring ctx, then delegates.
func (l *Limited) Render(ctx context.Context, doc Document) ([]byte, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, classify(err)
	}
	defer l.sem.Release(1)
	return l.engine.Render(ctx, doc)
}

// Close closes the wrapped engine.
func (l *Limited) Close() error {
	return Close(l.engine)
}
