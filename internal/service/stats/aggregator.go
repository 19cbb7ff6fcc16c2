package stats

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gfgkiit/trapped/internal/domain"
)

type bucketKey struct {
	topic  string
	domain string
	start  time.Time
}

type rollupAggregator struct {
	mu      sync.Mutex
	span    time.Duration
	buckets map[bucketKey]int64
}

func newRollupAggregator(span time.Duration) *rollupAggregator {
	if span <= 0 {
		span = time.Hour
	}
	return &rollupAggregator{span: span, buckets: make(map[bucketKey]int64)}
}

func (a *rollupAggregator) add(topic, domainName string, at time.Time) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	key := bucketKey{
		topic:  strings.TrimSpace(topic),
		domain: strings.TrimSpace(domainName),
		start:  at.UTC().Truncate(a.span),
	}
	a.buckets[key]++
}

// flushBefore removes and returns every bucket that closed at or before cutoff.
func (a *rollupAggregator) flushBefore(cutoff time.Time) []domain.Rollup {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var rollups []domain.Rollup
	for key, count := range a.buckets {
		if key.start.Add(a.span).After(cutoff) {
			continue
		}
		rollups = append(rollups, a.rollup(key, count))
		delete(a.buckets, key)
	}
	sortRollups(rollups)
	return rollups
}

func (a *rollupAggregator) flushAll() []domain.Rollup {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	rollups := make([]domain.Rollup, 0, len(a.buckets))
	for key, count := range a.buckets {
		rollups = append(rollups, a.rollup(key, count))
		delete(a.buckets, key)
	}
	sortRollups(rollups)
	return rollups
}

// pending returns the open buckets without removing them.
func (a *rollupAggregator) pending() []domain.Rollup {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	rollups := make([]domain.Rollup, 0, len(a.buckets))
	for key, count := range a.buckets {
		rollups = append(rollups, a.rollup(key, count))
	}
	sortRollups(rollups)
	return rollups
}

func (a *rollupAggregator) rollup(key bucketKey, count int64) domain.Rollup {
	return domain.Rollup{
		Topic:       key.topic,
		Domain:      key.domain,
		BucketStart: key.start,
		BucketSpan:  a.span,
		Count:       count,
	}
}

func sortRollups(rollups []domain.Rollup) {
	sort.Slice(rollups, func(i, j int) bool {
		a, b := rollups[i], rollups[j]
		if !a.BucketStart.Equal(b.BucketStart) {
			return a.BucketStart.Before(b.BucketStart)
		}
		if a.Topic != b.Topic {
			return a.Topic < b.Topic
		}
		return a.Domain < b.Domain
	})
}
