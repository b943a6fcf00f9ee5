// Package notify broadcasts engine events to connected WebSocket
// clients. It is an operator/debug surface: the engine runs fine with
// no hub attached, and a slow client never blocks the engine.
package notify

import (
	"time"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

// Event types carried on the wire.
const (
	EventRecordCreated    = "record_created"
	EventConflictResolved = "conflict_resolved"
	EventCycleComplete    = "maintenance_cycle_complete"
)

// Event is the JSON payload pushed to clients. Exactly one of Record,
// Audit, or Summary is set, matching Type.
type Event struct {
	Type    string                       `json:"type"`
	Time    time.Time                    `json:"time"`
	Record  *types.MemoryRecord          `json:"record,omitempty"`
	Audit   *types.ConflictAuditEntry    `json:"audit,omitempty"`
	Summary *types.MaintenanceRunSummary `json:"summary,omitempty"`
}

// EventSource is anything exposing the engine's callback hooks.
type EventSource interface {
	SetOnRecordCreated(fn func(record *types.MemoryRecord))
	SetOnConflictResolved(fn func(entry *types.ConflictAuditEntry))
	SetOnCycleComplete(fn func(summary *types.MaintenanceRunSummary))
}

// Bind wires an event source's callbacks to the hub.
func Bind(src EventSource, hub *Hub) {
	src.SetOnRecordCreated(func(record *types.MemoryRecord) {
		hub.Broadcast(Event{Type: EventRecordCreated, Time: time.Now().UTC(), Record: record})
	})
	src.SetOnConflictResolved(func(entry *types.ConflictAuditEntry) {
		hub.Broadcast(Event{Type: EventConflictResolved, Time: time.Now().UTC(), Audit: entry})
	})
	src.SetOnCycleComplete(func(summary *types.MaintenanceRunSummary) {
		hub.Broadcast(Event{Type: EventCycleComplete, Time: time.Now().UTC(), Summary: summary})
	})
}
