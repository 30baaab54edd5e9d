package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/repository/memory"
	"github.com/mnemo-lab/mnemosyne/pkg/service/shortterm"
	"github.com/mnemo-lab/mnemosyne/pkg/service/worker"
)

const testChannel = types.ChannelID("C0123456789")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// purgeCounter wraps the in-process store to record how many expired
// entries the sweep reclaims.
type purgeCounter struct {
	*memory.Client
	mu     sync.Mutex
	purged int
}

func (p *purgeCounter) PurgeExpired(ctx context.Context) int {
	n := p.Client.PurgeExpired(ctx)
	p.mu.Lock()
	p.purged += n
	p.mu.Unlock()
	return n
}

func (p *purgeCounter) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.purged
}

func TestSweepEvictsExpiredMessagesAndPurgesStore(t *testing.T) {
	clock := newTestClock()
	start := clock.Now()
	store := &purgeCounter{Client: memory.New(memory.WithClock(clock.Now))}
	svc := shortterm.New(
		shortterm.WithTTL(10*time.Minute),
		shortterm.WithClock(clock.Now),
	)
	ctx := context.Background()

	gt.NoError(t, store.Set(ctx, "short-lived", model.Text("x"), time.Minute)).Required()
	gt.NoError(t, svc.AddMessage(ctx, &model.Message{
		AuthorID:  "alice",
		Content:   "short-lived",
		Timestamp: clock.Now(),
		ChannelID: testChannel,
	})).Required()
	gt.Value(t, svc.Len(testChannel)).Equal(1)

	w := worker.NewSweepWorker(store, svc, 10*time.Millisecond)
	gt.NoError(t, w.Start(ctx)).Required()
	defer w.Stop()

	clock.Set(start.Add(time.Hour))

	// A sweep cycle reclaims the expired store entry
	deadline := time.Now().Add(2 * time.Second)
	for store.total() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweep did not purge the expired store entry")
		}
		time.Sleep(10 * time.Millisecond)
	}
	gt.Value(t, store.total()).Equal(1)

	// Rewinding the clock shows the buffer was physically drained by the
	// sweep, not lazily on this read.
	clock.Set(start)
	gt.Value(t, svc.Len(testChannel)).Equal(0)
}

func TestStopWaitsForWorker(t *testing.T) {
	w := worker.NewSweepWorker(memory.New(), shortterm.New(), 10*time.Millisecond)
	gt.NoError(t, w.Start(context.Background())).Required()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestContextCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := worker.NewSweepWorker(memory.New(), shortterm.New(), 10*time.Millisecond)
	gt.NoError(t, w.Start(ctx)).Required()

	cancel()
	// The loop exits on its own; Stop must still return even though the
	// stop signal races with context cancellation.
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}
