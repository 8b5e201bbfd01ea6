package publishablekey

import (
	"time"
)

// TokenPrefix marks publishable key tokens. The token is the value a
// storefront presents; it is not secret, so it is stored as-is.
const TokenPrefix = "pk_"

type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "active"
	KeyStatusRevoked KeyStatus = "revoked"
)

type PublishableKey struct {
	ID        string     `gorm:"column:id;primaryKey" json:"id"`
	Token     string     `gorm:"column:token;uniqueIndex;not null" json:"token"` // e.g. pk_3f9c...
	Title     string     `gorm:"column:title" json:"title"`
	CreatedBy string     `gorm:"column:created_by;not null;index" json:"created_by"`
	RevokedBy *string    `gorm:"column:revoked_by" json:"revoked_by,omitempty"`
	RevokedAt *time.Time `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PublishableKey) TableName() string {
	return "publishable_api_keys"
}

// Active reports whether the key is usable. The check reads revoked_by;
// revoke writes revoked_by and revoked_at together, so the predicates
// agree on every reachable state.
func (k *PublishableKey) Active() bool {
	return k.RevokedBy == nil
}

func (k *PublishableKey) Status() KeyStatus {
	if k.Active() {
		return KeyStatusActive
	}
	return KeyStatusRevoked
}
