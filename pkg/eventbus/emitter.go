package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"storekit-keyplane/pkg/errutil"
	"storekit-keyplane/pkg/repository"
)

// Emitter records a domain event on the caller's open transaction. Passing
// the tx is mandatory: an event written outside the mutating transaction
// could be observed without its mutation.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, name string, payload any) error
}

type emitter struct {
	node   *snowflake.Node
	events repository.Repository[Event]
}

func NewEmitter(db *gorm.DB, node *snowflake.Node) Emitter {
	return &emitter{
		node:   node,
		events: repository.ProvideStore[Event](db),
	}
}

func (e *emitter) Emit(ctx context.Context, tx *gorm.DB, name string, payload any) error {
	if tx == nil {
		return errutil.Internal("event emitted outside transaction", nil)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errutil.Internal("marshal event payload", err)
	}

	event := &Event{
		ID:            e.node.Generate().String(),
		Name:          name,
		Payload:       datatypes.JSON(body),
		Status:        EventStatusPending,
		NextAttemptAt: time.Now(),
	}

	return e.events.WithTrx(tx).Create(ctx, event)
}
