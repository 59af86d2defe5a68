package domain

import "time"

// PassState is the state of the reconciliation state machine.
type PassState string

// Reconciliation states, in pipeline order.
const (
	StateIdle      PassState = "idle"
	StateScanning  PassState = "scanning"
	StateParsing   PassState = "parsing"
	StateResolving PassState = "resolving"
	StateMatching  PassState = "matching"
	StateMutating  PassState = "mutating"
	StateReporting PassState = "reporting"
)

// Trigger names what requested a pass.
type Trigger string

// Pass triggers.
const (
	TriggerStartup  Trigger = "startup"
	TriggerWatch    Trigger = "watch"
	TriggerSchedule Trigger = "schedule"
	TriggerChange   Trigger = "change"
	TriggerAPI      Trigger = "api"
	TriggerDownload Trigger = "download"
)

// ReferenceError is a per-file failure accumulated into the pass report.
type ReferenceError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Report summarizes one completed pass.
type Report struct {
	PassID         string           `json:"pass_id"`
	Trigger        Trigger          `json:"trigger"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    time.Time        `json:"completed_at"`
	CatalogSize    int              `json:"catalog_size"`
	Matched        int              `json:"matched"`
	Unmatched      int              `json:"unmatched"`
	Ambiguous      int              `json:"ambiguous"`
	Archived       int              `json:"archived"`
	Published      int              `json:"published"`
	DirtyEntries   int              `json:"dirty_entries"`
	MissingFolders []string         `json:"missing_folders"`
	UnusedFolders  []string         `json:"unused_folders"`
	UnmatchedKeys  []string         `json:"unmatched_keys"`
	Errors         []ReferenceError `json:"errors,omitempty"`
}

// Duration returns how long the pass took.
func (r *Report) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
