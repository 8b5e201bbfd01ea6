package eventbus

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusDispatched EventStatus = "dispatched"
	EventStatusDead       EventStatus = "dead"
)

// Event is one outbox row. It is inserted on the same transaction as the
// store mutation that caused it, which is what makes emission and mutation
// a single atomic phase: neither is ever observable without the other.
type Event struct {
	ID            string         `gorm:"column:id;primaryKey" json:"id"`
	Name          string         `gorm:"column:name;index" json:"name"`
	Payload       datatypes.JSON `gorm:"column:payload" json:"payload"`
	Status        EventStatus    `gorm:"column:status;index;default:pending" json:"status"`
	Attempts      int            `gorm:"column:attempts" json:"attempts"`
	NextAttemptAt time.Time      `gorm:"column:next_attempt_at;index" json:"next_attempt_at"`
	LastError     string         `gorm:"column:last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DispatchedAt  *time.Time     `gorm:"column:dispatched_at" json:"dispatched_at,omitempty"`
}

func (Event) TableName() string {
	return "event_outbox"
}

// Envelope is the wire form of a committed event. Delivery is at least
// once; consumers dedupe on EventID.
type Envelope struct {
	EventID    string          `json:"event_id"`
	Name       string          `json:"name"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func (e *Event) Envelope() Envelope {
	return Envelope{
		EventID:    e.ID,
		Name:       e.Name,
		OccurredAt: e.CreatedAt,
		Payload:    json.RawMessage(e.Payload),
	}
}
