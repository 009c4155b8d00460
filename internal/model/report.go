package model

import "time"

// RunOutcome is the report of one pipeline run.
// It is produced for failed runs too, with State set to RunStateFailed.
type RunOutcome struct {
	RunID      string    `json:"run_id"`
	Trigger    Trigger   `json:"trigger"`               // What started the run
	State      RunState  `json:"state"`                 // Terminal state (done or failed)
	Stage      RunState  `json:"stage,omitempty"`       // Stage that failed, empty on success
	Error      string    `json:"error,omitempty"`       // Failure message, empty on success
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	ListingURL       string `json:"listing_url"`
	URLsDiscovered   int    `json:"urls_discovered"`
	RecordsHarvested int    `json:"records_harvested"`
	RecordsDegraded  int    `json:"records_degraded"`
	RecordsAppended  int    `json:"records_appended"`
	Duplicates       int    `json:"duplicates"`
	CorpusSize       int    `json:"corpus_size"`             // Rows in the combined corpus
	ArtifactPath     string `json:"artifact_path,omitempty"` // Batch artifact written before merge
}

// Duration returns how long the run took
func (o RunOutcome) Duration() time.Duration {
	if o.FinishedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// Succeeded reports whether the run reached RunStateDone
func (o RunOutcome) Succeeded() bool {
	return o.State == RunStateDone
}

// RunState is a step of the run state machine
type RunState string

const (
	RunStateDiscovering RunState = "discovering"
	RunStateHarvesting  RunState = "harvesting"
	RunStateMerging     RunState = "merging"
	RunStatePersisting  RunState = "persisting"
	RunStateDone        RunState = "done"
	RunStateFailed      RunState = "failed"
)

// Trigger identifies what started a run
type Trigger string

const (
	TriggerManual Trigger = "manual" // CLI `run`
	TriggerCron   Trigger = "cron"   // `schedule` command
	TriggerHTTP   Trigger = "http"   // `serve` command
)

// FetchMeta contains HTTP metadata from fetching a page
type FetchMeta struct {
	StatusCode   int               `json:"status_code"`
	ContentType  string            `json:"content_type,omitempty"`
	LastModified string            `json:"last_modified,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}
