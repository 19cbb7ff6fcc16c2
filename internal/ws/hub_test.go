package ws

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingSubscriber struct {
	mu      sync.Mutex
	got     [][]byte
	closed  bool
	failing bool
}

func (s *recordingSubscriber) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("broken pipe")
	}
	s.got = append(s.got, payload)
	return nil
}

func (s *recordingSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *recordingSubscriber) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.got))
	for _, p := range s.got {
		out = append(out, string(p))
	}
	return out
}

func (s *recordingSubscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestHubDeliversByTopic(t *testing.T) {
	defer goleak.VerifyNone(t)
	hub := NewHub()
	defer hub.Close()

	regs := &recordingSubscriber{}
	teams := &recordingSubscriber{}
	hub.Register("registrations", regs)
	hub.Register("teams", teams)

	require.NoError(t, hub.Publish("registrations", map[string]string{"id": "r1"}))
	hub.Broadcast("teams", []byte(`{"id":"t1"}`))

	require.Equal(t, 1, hub.Subscribers("registrations"))
	require.Eventually(t, func() bool { return len(regs.messages()) == 1 && len(teams.messages()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{`{"id":"r1"}`}, regs.messages())
	require.Equal(t, []string{`{"id":"t1"}`}, teams.messages())
}

func TestHubDropsFailingSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t)
	hub := NewHub()
	defer hub.Close()

	bad := &recordingSubscriber{failing: true}
	hub.Register("teams", bad)
	hub.Broadcast("teams", []byte("x"))

	require.Eventually(t, func() bool { return hub.Subscribers("teams") == 0 }, time.Second, 5*time.Millisecond)
	require.True(t, bad.isClosed())
}

func TestHubUnregister(t *testing.T) {
	defer goleak.VerifyNone(t)
	hub := NewHub()
	defer hub.Close()

	sub := &recordingSubscriber{}
	hub.Register("registrations", sub)
	hub.Unregister("registrations", sub)
	hub.Broadcast("registrations", []byte("x"))

	require.Zero(t, hub.Subscribers("registrations"))
	require.Empty(t, sub.messages())
}

func TestHubCloseStopsLoopAndClosesClients(t *testing.T) {
	defer goleak.VerifyNone(t)
	hub := NewHub()
	sub := &recordingSubscriber{}
	hub.Register("registrations", sub)

	hub.Close()
	hub.Close()

	require.True(t, sub.isClosed())
	hub.Broadcast("registrations", []byte("after close"))
	require.Empty(t, sub.messages())
	require.Zero(t, hub.Subscribers("registrations"))

	late := &recordingSubscriber{}
	hub.Register("teams", late)
	require.True(t, late.isClosed())
}

// stalledSubscriber blocks in Send until it is closed.
type stalledSubscriber struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	enter   sync.Once
}

func newStalledSubscriber() *stalledSubscriber {
	return &stalledSubscriber{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *stalledSubscriber) Send([]byte) error {
	s.enter.Do(func() { close(s.entered) })
	<-s.release
	return errors.New("closed")
}

func (s *stalledSubscriber) Close() {
	s.once.Do(func() { close(s.release) })
}

func TestHubPublishDoesNotWaitOnStalledSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t)
	hub := NewHub()
	defer hub.Close()

	stalled := newStalledSubscriber()
	hub.Register("registrations", stalled)

	require.NoError(t, hub.Publish("registrations", "first"))
	<-stalled.entered

	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i < outboxSize*4; i++ {
			_ = hub.Publish("registrations", i)
		}
	}()
	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked behind a stalled subscriber")
	}

	require.Eventually(t, func() bool { return hub.Subscribers("registrations") == 0 }, time.Second, 5*time.Millisecond)
	select {
	case <-stalled.release:
	default:
		t.Fatal("stalled subscriber was not closed")
	}
}
