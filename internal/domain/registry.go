package domain

import "time"

// UnmatchedEntry is a persisted record of a reference that failed to match.
type UnmatchedEntry struct {
	Key        string         `json:"key"`
	Reference  CoverReference `json:"reference"`
	SourcePath string         `json:"source_path"`
	Reason     string         `json:"reason"`
	Candidates []string       `json:"candidates,omitempty"`
	FirstSeen  time.Time      `json:"first_seen"`
	LastSeen   time.Time      `json:"last_seen"`
	Attempts   int            `json:"attempts"`
}

// HistoryRecord documents one superseded image. Records are append-only.
type HistoryRecord struct {
	ID           string    `json:"id"`
	EntryID      string    `json:"entry_id"`
	Slot         string    `json:"slot"`
	ReplacedAt   time.Time `json:"replaced_at"`
	ArchivedPath string    `json:"archived_path"`
	BlurHash     string    `json:"blurhash,omitempty"`
}
