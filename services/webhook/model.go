package webhook

import (
	"time"

	"github.com/lib/pq"
)

// SecretPrefix marks endpoint signing secrets. The plaintext is shown
// exactly once at create time; only the sealed form is stored.
const SecretPrefix = "whsec_"

// SignatureHeader carries the hex HMAC-SHA256 of the delivery body.
const SignatureHeader = "X-Keyplane-Signature"

type Endpoint struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	URL         string         `gorm:"column:url;not null" json:"url"`
	Description string         `gorm:"column:description" json:"description"`
	EventTypes  pq.StringArray `gorm:"column:event_types;type:text[]" json:"event_types"`
	Secret      string         `gorm:"column:secret;not null" json:"-"`
	Disabled    bool           `gorm:"column:disabled;default:false" json:"disabled"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Endpoint) TableName() string {
	return "webhook_endpoints"
}

// Subscribed reports whether the endpoint wants the named event. An empty
// subscription list subscribes to everything.
func (e *Endpoint) Subscribed(name string) bool {
	if len(e.EventTypes) == 0 {
		return true
	}
	for _, t := range e.EventTypes {
		if t == name {
			return true
		}
	}
	return false
}
