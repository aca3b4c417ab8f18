package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ==========================================================================
// Tasks
// ==========================================================================

// Tasks runs periodic jobs grouped by key. Each speaker owns one key so its
// renewal and polling jobs can be cancelled together on removal.
//
// A job never overlaps with itself: a tick that fires while the previous run
// is still busy is skipped. Panics are recovered and logged.
type Tasks struct {
	logger  *log.Logger
	cron    *cron.Cron
	chain   cron.Chain
	mu      sync.Mutex
	entries map[string][]cron.EntryID
}

// NewTasks creates a stopped task runner. A nil logger uses log.Default().
func NewTasks(logger *log.Logger) *Tasks {
	if logger == nil {
		logger = log.Default()
	}
	cronLogger := cron.PrintfLogger(logger)
	return &Tasks{
		logger:  logger,
		cron:    cron.New(cron.WithLogger(cronLogger)),
		chain:   cron.NewChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		entries: make(map[string][]cron.EntryID),
	}
}

// Every schedules fn under key at a fixed interval. Intervals below one
// second are rounded up to one second.
func (t *Tasks) Every(key string, interval time.Duration, fn func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("scheduler: interval for %q must be positive", key)
	}
	id := t.cron.Schedule(cron.Every(interval), t.chain.Then(cron.FuncJob(fn)))

	t.mu.Lock()
	t.entries[key] = append(t.entries[key], id)
	t.mu.Unlock()
	return id, nil
}

// Cancel removes every job scheduled under key. Runs already in flight finish.
func (t *Tasks) Cancel(key string) int {
	t.mu.Lock()
	ids := t.entries[key]
	delete(t.entries, key)
	t.mu.Unlock()

	for _, id := range ids {
		t.cron.Remove(id)
	}
	return len(ids)
}

// Keys returns the keys with at least one scheduled job.
func (t *Tasks) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of jobs scheduled under key.
func (t *Tasks) Len(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries[key])
}

func (t *Tasks) Start() {
	t.cron.Start()
}

// Stop halts scheduling and waits for running jobs or ctx, whichever comes first.
func (t *Tasks) Stop(ctx context.Context) error {
	done := t.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		t.logger.Printf("SCHEDULER: stop timed out waiting for running jobs")
		return ctx.Err()
	}
}
