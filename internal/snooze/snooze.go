// Package snooze persists the single "stop warning me until" timestamp.
package snooze

import (
	"context"
	"time"
)

// DefaultDuration is how long a snooze lasts when none is given.
const DefaultDuration = 8 * time.Hour

// Store persists the snooze expiry as epoch milliseconds.
type Store interface {
	// Get returns the stored expiry. ok is false when nothing is stored.
	Get(ctx context.Context) (until int64, ok bool, err error)
	Set(ctx context.Context, until int64) error
	Clear(ctx context.Context) error
}

// Record is a stored snooze.
type Record struct {
	DisabledUntil int64 `yaml:"disabled_until" json:"disabled_until"`
}

// Until returns the expiry as a time.
func (r Record) Until() time.Time { return time.UnixMilli(r.DisabledUntil) }

// ActiveAt reports whether the snooze still holds at now.
func (r Record) ActiveAt(now time.Time) bool { return now.UnixMilli() < r.DisabledUntil }

// Lookup reads the current record. active is false when nothing is
// stored, the record has expired, or the read failed; the error is
// returned for logging only.
func Lookup(ctx context.Context, s Store, now time.Time) (rec Record, active bool, err error) {
	until, ok, err := s.Get(ctx)
	if err != nil || !ok {
		return Record{}, false, err
	}
	rec = Record{DisabledUntil: until}
	return rec, rec.ActiveAt(now), nil
}

// Active reports whether classification is currently snoozed.
func Active(ctx context.Context, s Store, now time.Time) (bool, error) {
	_, active, err := Lookup(ctx, s, now)
	return active, err
}

// Snooze stores an expiry d after now. A non-positive d uses
// DefaultDuration.
func Snooze(ctx context.Context, s Store, now time.Time, d time.Duration) (Record, error) {
	if d <= 0 {
		d = DefaultDuration
	}
	rec := Record{DisabledUntil: now.Add(d).UnixMilli()}
	if err := s.Set(ctx, rec.DisabledUntil); err != nil {
		return Record{}, err
	}
	return rec, nil
}
