package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePruner struct {
	cutoffs []time.Time
	removed int
	err     error
}

func (p *fakePruner) Prune(_ context.Context, cutoff time.Time) (int, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.removed, p.err
}

func TestRetentionCutoff(t *testing.T) {
	p := &fakePruner{removed: 3}
	w := NewRetentionWorker(p, 30*24*time.Hour, time.Hour, nil)
	now := time.Date(2026, 3, 31, 8, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	assert.Equal(t, 3, w.RunOnce(context.Background()))
	assert.Equal(t, []time.Time{time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}, p.cutoffs)
}

func TestRetentionFailureIsReported(t *testing.T) {
	p := &fakePruner{removed: 1, err: errors.New("disk gone")}
	w := NewRetentionWorker(p, time.Hour, time.Hour, nil)

	assert.Equal(t, 1, w.RunOnce(context.Background()))
}

func TestRetentionStopsWithContext(t *testing.T) {
	p := &fakePruner{}
	w := NewRetentionWorker(p, time.Hour, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
