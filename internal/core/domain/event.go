package domain

import (
	"encoding/json"
	"time"
)

const CurrentEventSchemaVersion = 1

const (
	EventRuleUpserted = "rewrite_rule.upserted"
	EventRuleDeleted  = "rewrite_rule.deleted"
)

type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

type OutboxEvent struct {
	ID            int64
	EventID       string
	Topic         string
	PayloadJSON   json.RawMessage
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}

// RulePayload is the body of rewrite rule events.
type RulePayload struct {
	RuleID   int64         `json:"rule_id"`
	Owner    OwnerKind     `json:"owner"`
	OwnerID  int64         `json:"owner_id"`
	Register string        `json:"register"`
	Label    string        `json:"label"`
	Pattern  string        `json:"pattern"`
	Mappings []MediaTarget `json:"mappings,omitempty"`
}
