package domain

import "time"

// Feed topics published to admin stream subscribers.
const (
	TopicRegistrations = "registrations"
	TopicTeams         = "teams"
	TopicStats         = "stats"
)

// Event announces a newly admitted record on the admin feed.
type Event struct {
	Type   string    `json:"type"`
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Domain string    `json:"domain,omitempty"`
	At     time.Time `json:"at"`
}

// Rollup counts admissions of one topic and domain within a time bucket.
type Rollup struct {
	Topic       string        `json:"topic"`
	Domain      string        `json:"domain,omitempty"`
	BucketStart time.Time     `json:"bucketStart"`
	BucketSpan  time.Duration `json:"bucketSpan"`
	Count       int64         `json:"count"`
}
