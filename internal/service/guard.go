package service

import (
	"context"
	"sync"
)

// WriteTracker counts in-flight persistence writes so shutdown can
// drain them instead of cancelling them; a cancelled write is silent
// data loss. The zero value is ready to use.
type WriteTracker struct {
	wg sync.WaitGroup
}

// Start registers one write. Pair every Start with a Done.
func (t *WriteTracker) Start() {
	t.wg.Add(1)
}

// Done marks one write finished.
func (t *WriteTracker) Done() {
	t.wg.Done()
}

// Wait blocks until every registered write has finished or ctx is
// cancelled, whichever comes first.
func (t *WriteTracker) Wait(ctx context.Context) {
	idle := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
	}
}
