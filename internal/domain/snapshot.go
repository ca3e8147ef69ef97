package domain

import "time"

// Profile is a tracked public trading profile.
type Profile struct {
	ID       int64     `json:"id"`
	Slug     string    `json:"slug"`
	Name     string    `json:"name"`
	IsActive bool      `json:"is_active"`
	AddedAt  time.Time `json:"added_at"`
}

// StoredSnapshot is a snapshot row as persisted: the raw feed payload plus its capture time.
type StoredSnapshot struct {
	ID              int64
	ProfileID       int64
	Timestamp       time.Time
	Raw             []byte
	CreatedAtSource string
}

// Snapshot is a decoded point-in-time capture of a profile's positions.
type Snapshot struct {
	ID        int64
	ProfileID int64
	Timestamp time.Time
	Payload   Payload
	Trades    TradeMap
}

// Change marks a snapshot that differs structurally from its predecessor.
type Change struct {
	ID          int64     `json:"id"`
	ProfileID   int64     `json:"profile_id"`
	SnapshotID  int64     `json:"snapshot_id"`
	Timestamp   time.Time `json:"timestamp"`
	DiffSummary string    `json:"diff_summary"`
}

// ChangeEvent is published to the change feed whenever a change is recorded.
type ChangeEvent struct {
	ID         string    `json:"id"`
	Seq        uint64    `json:"seq"`
	Profile    string    `json:"profile"`
	ChangeID   int64     `json:"change_id"`
	SnapshotID int64     `json:"snapshot_id"`
	Timestamp  time.Time `json:"ts"`
	Summary    string    `json:"summary"`
	Added      int       `json:"added"`
	Removed    int       `json:"removed"`
	Modified   int       `json:"modified"`
}
