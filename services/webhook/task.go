package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"storekit-keyplane/pkg/config"
	"storekit-keyplane/pkg/errutil"
	"storekit-keyplane/pkg/eventbus"
	"storekit-keyplane/pkg/security"
	"storekit-keyplane/pkg/task"
)

// TypeEventDeliver posts one committed event to one endpoint. Retries are
// asynq's: a failed delivery returns an error and gets redelivered.
const TypeEventDeliver = "webhook:event:deliver"

const defaultDeliveryTimeout = 10 * time.Second

type DeliverPayload struct {
	EndpointID string            `json:"endpoint_id"`
	Envelope   eventbus.Envelope `json:"envelope"`
}

func NewDeliverTask(endpointID string, envelope eventbus.Envelope) (*asynq.Task, error) {
	payload, err := json.Marshal(DeliverPayload{EndpointID: endpointID, Envelope: envelope})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEventDeliver, payload, asynq.Queue(task.QueueDefault)), nil
}

// Dispatcher expands committed events into per-endpoint deliveries and
// performs them.
type Dispatcher struct {
	svc      *Service
	enqueuer task.Enqueuer
	client   *http.Client
}

func NewDispatcher(svc *Service, enqueuer task.Enqueuer, cfg *config.Config) *Dispatcher {
	timeout := cfg.Webhook.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}

	return &Dispatcher{
		svc:      svc,
		enqueuer: enqueuer,
		client:   &http.Client{Timeout: timeout},
	}
}

// HandleFanout enqueues one delivery task per enabled endpoint subscribed
// to the event.
func (d *Dispatcher) HandleFanout(ctx context.Context, t *asynq.Task) error {
	envelope, err := eventbus.ParseFanoutTask(t)
	if err != nil {
		return fmt.Errorf("parse fanout payload: %v: %w", err, asynq.SkipRetry)
	}

	endpoints, err := d.svc.Subscribers(ctx, envelope.Name)
	if err != nil {
		return err
	}

	for _, endpoint := range endpoints {
		deliver, err := NewDeliverTask(endpoint.ID, envelope)
		if err != nil {
			return err
		}
		if _, err := d.enqueuer.Enqueue(ctx, deliver); err != nil {
			return fmt.Errorf("enqueue delivery for endpoint %s: %w", endpoint.ID, err)
		}
	}

	zap.L().Debug("event fanned out",
		zap.String("event_id", envelope.EventID),
		zap.String("name", envelope.Name),
		zap.Int("endpoints", len(endpoints)),
	)

	return nil
}

// HandleDeliver signs the envelope and POSTs it to the endpoint. Any
// non-2xx answer is an error so asynq retries the delivery.
func (d *Dispatcher) HandleDeliver(ctx context.Context, t *asynq.Task) error {
	var payload DeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("parse deliver payload: %v: %w", err, asynq.SkipRetry)
	}

	endpoint, err := d.svc.Get(ctx, payload.EndpointID)
	if err != nil {
		if errutil.HasStatus(err, errutil.StatusNotFound) {
			return fmt.Errorf("endpoint %s deleted: %w", payload.EndpointID, asynq.SkipRetry)
		}
		return err
	}

	if endpoint.Disabled {
		return nil
	}

	secret, err := d.svc.SigningSecret(endpoint)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload.Envelope)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, security.Sign(secret, body))
	req.Header.Set("X-Keyplane-Event", payload.Envelope.Name)
	req.Header.Set("X-Keyplane-Event-Id", payload.Envelope.EventID)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", endpoint.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("deliver to %s: unexpected status %d", endpoint.URL, resp.StatusCode)
	}

	zap.L().Debug("event delivered",
		zap.String("event_id", payload.Envelope.EventID),
		zap.String("endpoint_id", endpoint.ID),
	)

	return nil
}
