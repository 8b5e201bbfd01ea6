package eventbus

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"storekit-keyplane/pkg/task"
)

// TypeEventFanout carries a committed envelope to the worker, which
// expands it into per-endpoint webhook deliveries.
const TypeEventFanout = "event:fanout"

// FlagWebhookFanout is the kill switch for webhook propagation. Events
// still reach the bus while it is off.
const FlagWebhookFanout = "webhook_fanout"

func NewFanoutTask(envelope Envelope) (*asynq.Task, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEventFanout, payload, asynq.Queue(task.QueueCritical)), nil
}

func ParseFanoutTask(t *asynq.Task) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(t.Payload(), &envelope); err != nil {
		return Envelope{}, err
	}
	return envelope, nil
}
