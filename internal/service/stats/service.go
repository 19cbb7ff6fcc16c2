// Package stats keeps running admission counts for the admin dashboard.
package stats

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gfgkiit/trapped/internal/domain"
	"github.com/gfgkiit/trapped/internal/repository"
)

const (
	defaultBucketSpan    = time.Hour
	defaultFlushInterval = time.Minute
	maxRecentRollups     = 96
)

// Publisher receives admin feed messages.
type Publisher interface {
	Publish(topic string, v any) error
}

// Summary is a point-in-time view of admission counts.
type Summary struct {
	Registrations int64            `json:"registrations"`
	Teams         int64            `json:"teams"`
	ByDomain      map[string]int64 `json:"byDomain"`
	Recent        []domain.Rollup  `json:"recent"`
	GeneratedAt   time.Time        `json:"generatedAt"`
}

// Service counts admission events as they pass to the admin feed and rolls
// them up into fixed time buckets. It is itself a Publisher, so it sits in
// front of the feed hub.
type Service struct {
	next          Publisher
	aggregator    *rollupAggregator
	bucketSpan    time.Duration
	flushInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time
	once          sync.Once

	mu       sync.RWMutex
	totals   map[string]int64
	byDomain map[string]int64
	recent   []domain.Rollup
}

// New constructs a Service forwarding events to next. next may be nil.
func New(next Publisher, logger *slog.Logger, bucketSpan, flushInterval time.Duration) *Service {
	if bucketSpan <= 0 {
		bucketSpan = defaultBucketSpan
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	if flushInterval > bucketSpan {
		flushInterval = bucketSpan
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		next:          next,
		aggregator:    newRollupAggregator(bucketSpan),
		bucketSpan:    bucketSpan,
		flushInterval: flushInterval,
		logger:        logger.With("component", "stats"),
		now:           time.Now,
		totals:        make(map[string]int64),
		byDomain:      make(map[string]int64),
	}
}

// Seed loads the totals already held by storage so counts survive restarts.
func (s *Service) Seed(ctx context.Context, registrations repository.RegistrationRepository, teams repository.TeamRepository) error {
	if s == nil {
		return errors.New("stats service not initialised")
	}
	records, err := registrations.ListRegistrations(ctx, repository.RegistrationFilter{})
	if err != nil {
		return err
	}
	rosters, err := teams.ListTeams(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[domain.TopicRegistrations] = int64(len(records))
	s.totals[domain.TopicTeams] = int64(len(rosters))
	s.byDomain = make(map[string]int64)
	for _, r := range records {
		s.byDomain[r.Domain1]++
	}
	s.logger.Info("stats seeded", "registrations", len(records), "teams", len(rosters))
	return nil
}

// Publish records admission events and forwards every message to the next
// publisher.
func (s *Service) Publish(topic string, v any) error {
	if event, ok := v.(domain.Event); ok {
		s.record(topic, event)
	}
	if s.next == nil {
		return nil
	}
	return s.next.Publish(topic, v)
}

func (s *Service) record(topic string, event domain.Event) {
	at := event.At
	if at.IsZero() {
		at = s.now()
	}
	s.aggregator.add(topic, event.Domain, at)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[topic]++
	if topic == domain.TopicRegistrations && event.Domain != "" {
		s.byDomain[event.Domain]++
	}
}

// Run flushes closed buckets until ctx is cancelled, then flushes the rest.
func (s *Service) Run(ctx context.Context) {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.logger.Info("stats service started", "bucket_span", s.bucketSpan, "flush_interval", s.flushInterval)
	})
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.publishRollups(s.aggregator.flushAll())
			s.logger.Info("stats service stopped")
			return
		case <-ticker.C:
			s.flushStale()
		}
	}
}

func (s *Service) flushStale() {
	s.publishRollups(s.aggregator.flushBefore(s.now()))
}

func (s *Service) publishRollups(rollups []domain.Rollup) {
	if len(rollups) == 0 {
		return
	}
	s.mu.Lock()
	s.recent = append(s.recent, rollups...)
	if extra := len(s.recent) - maxRecentRollups; extra > 0 {
		s.recent = append([]domain.Rollup(nil), s.recent[extra:]...)
	}
	s.mu.Unlock()

	if s.next == nil {
		return
	}
	for _, r := range rollups {
		if err := s.next.Publish(domain.TopicStats, r); err != nil {
			s.logger.Warn("failed to publish rollup", "topic", r.Topic, "error", err)
		}
	}
}

// Snapshot returns the current totals, flushed rollups and the buckets still
// open.
func (s *Service) Snapshot() Summary {
	s.mu.RLock()
	summary := Summary{
		Registrations: s.totals[domain.TopicRegistrations],
		Teams:         s.totals[domain.TopicTeams],
		ByDomain:      make(map[string]int64, len(s.byDomain)),
		Recent:        append([]domain.Rollup(nil), s.recent...),
		GeneratedAt:   s.now().UTC(),
	}
	for name, count := range s.byDomain {
		summary.ByDomain[name] = count
	}
	s.mu.RUnlock()
	summary.Recent = append(summary.Recent, s.aggregator.pending()...)
	return summary
}
