// Package models defines the wire and in-process shapes shared across the
// bus: messages, agent records, and validation results.
package models

import (
	"encoding/json"
	"time"
)

// MessageType tags the semantic kind of an AgentMessage.
type MessageType string

const (
	MessageCommand                  MessageType = "command"
	MessageQuery                    MessageType = "query"
	MessageResponse                 MessageType = "response"
	MessageEvent                    MessageType = "event"
	MessageNotification              MessageType = "notification"
	MessageHeartbeat                MessageType = "heartbeat"
	MessageGovernanceRequest         MessageType = "governance_request"
	MessageGovernanceResponse        MessageType = "governance_response"
	MessageConstitutionalValidation  MessageType = "constitutional_validation"
	MessageTaskRequest               MessageType = "task_request"
	MessageTaskResponse              MessageType = "task_response"
	MessageAuditLog                  MessageType = "audit_log"
)

// Priority tags the urgency of an AgentMessage.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Status is the bus-internal lifecycle state of an AgentMessage.
type Status string

const (
	StatusPending             Status = "pending"
	StatusProcessing          Status = "processing"
	StatusValidated           Status = "validated"
	StatusDelivered           Status = "delivered"
	StatusFailed              Status = "failed"
	StatusExpired             Status = "expired"
	StatusPendingDeliberation Status = "pending_deliberation"
)

// AgentMessage is the unit of communication crossing the bus.
type AgentMessage struct {
	MessageID      string         `json:"message_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	FromAgent      string         `json:"from_agent"`
	ToAgent        string         `json:"to_agent"`
	SenderID       string         `json:"sender_id"`
	MessageType    MessageType    `json:"message_type"`
	Priority       Priority       `json:"priority"`
	Status         Status         `json:"status"`
	TenantID       string         `json:"tenant_id,omitempty"`
	Content        map[string]any `json:"content"`
	Payload        map[string]any `json:"payload,omitempty"`

	ConstitutionalHash      string `json:"constitutional_hash"`
	ConstitutionalValidated bool   `json:"constitutional_validated"`

	// ImpactScore is nil until the impact scorer sets it; once set it is
	// read-only for the remainder of processing (spec.md §3 invariant).
	ImpactScore *float64 `json:"impact_score,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// RawExtensions preserves unknown fields across a serialize/deserialize
	// round trip (spec.md §6: "unknown fields are preserved").
	RawExtensions map[string]json.RawMessage `json:"-"`
}

// IsBroadcast reports whether ToAgent carries broadcast intent.
func (m *AgentMessage) IsBroadcast() bool {
	return m.ToAgent == ""
}

// SetImpactScore sets the impact score exactly once; subsequent calls are
// no-ops, enforcing the read-only-after-set invariant.
func (m *AgentMessage) SetImpactScore(score float64) {
	if m.ImpactScore != nil {
		return
	}
	m.ImpactScore = &score
}

type messageAlias AgentMessage

// MarshalJSON merges RawExtensions back into the top-level object.
func (m AgentMessage) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(messageAlias(m))
	if err != nil {
		return nil, err
	}
	if len(m.RawExtensions) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.RawExtensions {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON captures unknown fields into RawExtensions.
func (m *AgentMessage) UnmarshalJSON(data []byte) error {
	var alias messageAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*m = AgentMessage(alias)

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	known := knownMessageFields()
	extras := make(map[string]json.RawMessage)
	for k, v := range all {
		if !known[k] {
			extras[k] = v
		}
	}
	if len(extras) > 0 {
		m.RawExtensions = extras
	}
	return nil
}

func knownMessageFields() map[string]bool {
	return map[string]bool{
		"message_id": true, "conversation_id": true, "from_agent": true,
		"to_agent": true, "sender_id": true, "message_type": true,
		"priority": true, "status": true, "tenant_id": true, "content": true,
		"payload": true, "constitutional_hash": true,
		"constitutional_validated": true, "impact_score": true,
		"created_at": true, "updated_at": true,
	}
}
