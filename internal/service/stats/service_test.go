package stats

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gfgkiit/trapped/internal/domain"
	"github.com/gfgkiit/trapped/internal/repository/memory"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages map[string][]any
}

func (p *recordingPublisher) Publish(topic string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messages == nil {
		p.messages = make(map[string][]any)
	}
	p.messages[topic] = append(p.messages[topic], v)
	return nil
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages[topic])
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishCountsAndForwards(t *testing.T) {
	next := &recordingPublisher{}
	svc := New(next, quietLogger(), time.Hour, time.Minute)
	at := time.Date(2025, time.August, 1, 10, 15, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	require.NoError(t, svc.Publish(domain.TopicRegistrations, domain.Event{ID: "r1", Domain: "AI/ML", At: at}))
	require.NoError(t, svc.Publish(domain.TopicRegistrations, domain.Event{ID: "r2", Domain: "Web Dev", At: at}))
	require.NoError(t, svc.Publish(domain.TopicTeams, domain.Event{ID: "t1", At: at}))
	require.NoError(t, svc.Publish(domain.TopicRegistrations, "not an event"))

	assert.Equal(t, 3, next.count(domain.TopicRegistrations))
	assert.Equal(t, 1, next.count(domain.TopicTeams))

	summary := svc.Snapshot()
	assert.Equal(t, int64(2), summary.Registrations)
	assert.Equal(t, int64(1), summary.Teams)
	assert.Equal(t, map[string]int64{"AI/ML": 1, "Web Dev": 1}, summary.ByDomain)
	assert.Len(t, summary.Recent, 3)
}

func TestFlushStalePublishesClosedBuckets(t *testing.T) {
	next := &recordingPublisher{}
	svc := New(next, quietLogger(), time.Hour, time.Minute)
	at := time.Date(2025, time.August, 1, 10, 15, 0, 0, time.UTC)
	require.NoError(t, svc.Publish(domain.TopicRegistrations, domain.Event{ID: "r1", Domain: "AI/ML", At: at}))

	svc.now = func() time.Time { return at.Add(10 * time.Minute) }
	svc.flushStale()
	assert.Zero(t, next.count(domain.TopicStats))

	svc.now = func() time.Time { return at.Add(time.Hour) }
	svc.flushStale()
	require.Equal(t, 1, next.count(domain.TopicStats))
	rollup, ok := next.messages[domain.TopicStats][0].(domain.Rollup)
	require.True(t, ok)
	assert.Equal(t, int64(1), rollup.Count)
	assert.Len(t, svc.Snapshot().Recent, 1)
}

func TestRecentRollupsAreBounded(t *testing.T) {
	svc := New(nil, quietLogger(), time.Hour, time.Minute)
	rollups := make([]domain.Rollup, maxRecentRollups+10)
	for i := range rollups {
		rollups[i] = domain.Rollup{Topic: domain.TopicTeams, Count: int64(i)}
	}
	svc.publishRollups(rollups)
	recent := svc.Snapshot().Recent
	require.Len(t, recent, maxRecentRollups)
	assert.Equal(t, int64(10), recent[0].Count)
}

func TestSeedFromStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateRegistration(ctx, &domain.Registration{ID: "a", Email: "a@kiit.ac.in", DeviceID: "d1", Domain1: "AI/ML"}))
	require.NoError(t, store.CreateRegistration(ctx, &domain.Registration{ID: "b", Email: "b@kiit.ac.in", DeviceID: "d2", Domain1: "AI/ML"}))
	require.NoError(t, store.CreateTeam(ctx, &domain.Team{ID: "t", TeamName: "Rocket"}))

	svc := New(nil, quietLogger(), 0, 0)
	require.NoError(t, svc.Seed(ctx, store, store))
	summary := svc.Snapshot()
	assert.Equal(t, int64(2), summary.Registrations)
	assert.Equal(t, int64(1), summary.Teams)
	assert.Equal(t, int64(2), summary.ByDomain["AI/ML"])
}

func TestRunFlushesOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	next := &recordingPublisher{}
	svc := New(next, quietLogger(), time.Hour, time.Hour)
	require.NoError(t, svc.Publish(domain.TopicTeams, domain.Event{ID: "t1", At: time.Now()}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, next.count(domain.TopicStats))
}
