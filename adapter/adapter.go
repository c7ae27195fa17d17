// Package adapter defines the event-bus adapter boundary.
//
// Adapters publish session completion notifications to downstream
// systems. The CLI owns adapter lifecycle; users provide configuration
// only.
package adapter

import "context"

// ContractVersion is the completion event contract version. Consumers
// should tolerate additive fields within a major version.
const ContractVersion = "1.0.0"

// SessionCompletedEvent is the payload published when a decode session
// finishes.
type SessionCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "session_completed"
	RunID           string `json:"run_id"`
	Input           string `json:"input"`
	Schema          string `json:"schema,omitempty"`
	Source          string `json:"source,omitempty"`
	Day             string `json:"day,omitempty"`
	Outcome         string `json:"outcome"` // completed, error, crash, invalid_input
	StoragePath     string `json:"storage_path,omitempty"`
	Timestamp       string `json:"timestamp"` // ISO 8601
	FramesRead      int64  `json:"frames_read"`
	FramesDecoded   int64  `json:"frames_decoded"`
	RowsPersisted   int64  `json:"rows_persisted"`
	DurationMs      int64  `json:"duration_ms"`
}

// Adapter publishes session completion events to a downstream system.
// Implementations must be safe for single-use per session.
type Adapter interface {
	// Publish sends a session completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SessionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
