// Package publisher defines the events the distiller emits for downstream
// consumers such as lead scoring.
package publisher

import "time"

// EventSignalsAppended is the event type attribute of SignalsAppended messages.
const EventSignalsAppended = "signals.appended"

// SignalsAppended announces new durable signals for a record.
type SignalsAppended struct {
	OrganizationID string    `json:"organization_id"`
	RecordID       string    `json:"record_id"`
	SignalIDs      []string  `json:"signal_ids"`
	TotalSignals   int       `json:"total_signals"`
	LeadScore      int       `json:"lead_score"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Attributes returns message attributes used for subscription filtering.
func (e SignalsAppended) Attributes() map[string]string {
	return map[string]string{
		"event_type":      EventSignalsAppended,
		"organization_id": e.OrganizationID,
		"record_id":       e.RecordID,
	}
}
