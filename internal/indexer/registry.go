package indexer

import (
	"context"
	"log/slog"
	"sync"
)

// Registry owns every registered Driver and runs them concurrently, one
// goroutine per indexer, matching the teacher's "go scheduler.Start(ctx)"
// launch idiom. Each indexer is fully independent: section 5 requires no
// cross-indexer ordering.
type Registry struct {
	drivers []*Driver
	log     *slog.Logger
}

// NewRegistry builds an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{log: log}
}

// Register adds idx to the registry. Must be called before Run.
func (r *Registry) Register(idx Indexer) {
	r.drivers = append(r.drivers, New(idx, r.log))
}

// Run launches every registered driver's tick loop and blocks until ctx is
// canceled, then waits for all loops to return.
func (r *Registry) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, d := range r.drivers {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Loop(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
}
