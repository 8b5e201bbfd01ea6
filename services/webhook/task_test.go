package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"storekit-keyplane/pkg/config"
	"storekit-keyplane/pkg/eventbus"
	"storekit-keyplane/pkg/security"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, t *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, t)
	return &asynq.TaskInfo{}, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *Service, *fakeEnqueuer) {
	t.Helper()

	svc, _ := newTestService(t)
	enqueuer := &fakeEnqueuer{}
	cfg := &config.Config{}
	cfg.Webhook.DeliveryTimeout = time.Second

	return NewDispatcher(svc, enqueuer, cfg), svc, enqueuer
}

func testEnvelope() eventbus.Envelope {
	return eventbus.Envelope{
		EventID:    "1888888888888888888",
		Name:       "publishable_api_key.created",
		OccurredAt: time.Now().UTC(),
		Payload:    json.RawMessage(`{"id":"key_1"}`),
	}
}

func TestHandleFanout(t *testing.T) {
	dispatcher, svc, enqueuer := newTestDispatcher(t)

	createdOnly, err := svc.Create(context.Background(), CreateEndpointRequest{
		URL:        "https://example.com/created",
		EventTypes: []string{"publishable_api_key.created"},
	})
	require.NoError(t, err)

	catchAll, err := svc.Create(context.Background(), CreateEndpointRequest{
		URL: "https://example.com/all",
	})
	require.NoError(t, err)

	revokedOnly, err := svc.Create(context.Background(), CreateEndpointRequest{
		URL:        "https://example.com/revoked",
		EventTypes: []string{"publishable_api_key.revoked"},
	})
	require.NoError(t, err)

	fanout, err := eventbus.NewFanoutTask(testEnvelope())
	require.NoError(t, err)

	require.NoError(t, dispatcher.HandleFanout(context.Background(), fanout))
	require.Len(t, enqueuer.tasks, 2)

	var ids []string
	for _, enqueued := range enqueuer.tasks {
		require.Equal(t, TypeEventDeliver, enqueued.Type())

		var payload DeliverPayload
		require.NoError(t, json.Unmarshal(enqueued.Payload(), &payload))
		require.Equal(t, "1888888888888888888", payload.Envelope.EventID)
		ids = append(ids, payload.EndpointID)
	}
	require.Contains(t, ids, createdOnly.ID)
	require.Contains(t, ids, catchAll.ID)
	require.NotContains(t, ids, revokedOnly.ID)
}

func TestHandleFanoutBadPayload(t *testing.T) {
	dispatcher, _, _ := newTestDispatcher(t)

	broken := asynq.NewTask(eventbus.TypeEventFanout, []byte("{"))
	err := dispatcher.HandleFanout(context.Background(), broken)
	require.Error(t, err)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleDeliver(t *testing.T) {
	dispatcher, svc, _ := newTestDispatcher(t)

	var (
		gotBody   []byte
		gotHeader http.Header
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	created, err := svc.Create(context.Background(), CreateEndpointRequest{URL: server.URL})
	require.NoError(t, err)

	envelope := testEnvelope()
	deliver, err := NewDeliverTask(created.ID, envelope)
	require.NoError(t, err)

	require.NoError(t, dispatcher.HandleDeliver(context.Background(), deliver))

	require.True(t, security.VerifySignature(created.Secret, gotBody, gotHeader.Get(SignatureHeader)))
	require.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	require.Equal(t, envelope.Name, gotHeader.Get("X-Keyplane-Event"))
	require.Equal(t, envelope.EventID, gotHeader.Get("X-Keyplane-Event-Id"))

	var received eventbus.Envelope
	require.NoError(t, json.Unmarshal(gotBody, &received))
	require.Equal(t, envelope.EventID, received.EventID)
	require.Equal(t, envelope.Name, received.Name)
	require.JSONEq(t, `{"id":"key_1"}`, string(received.Payload))
}

func TestHandleDeliverRetriesOnServerError(t *testing.T) {
	dispatcher, svc, _ := newTestDispatcher(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	created, err := svc.Create(context.Background(), CreateEndpointRequest{URL: server.URL})
	require.NoError(t, err)

	deliver, err := NewDeliverTask(created.ID, testEnvelope())
	require.NoError(t, err)

	err = dispatcher.HandleDeliver(context.Background(), deliver)
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleDeliverSkipsDisabled(t *testing.T) {
	dispatcher, svc, _ := newTestDispatcher(t)

	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	created, err := svc.Create(context.Background(), CreateEndpointRequest{URL: server.URL})
	require.NoError(t, err)

	disabled := true
	_, err = svc.Update(context.Background(), created.ID, UpdateEndpointRequest{Disabled: &disabled})
	require.NoError(t, err)

	deliver, err := NewDeliverTask(created.ID, testEnvelope())
	require.NoError(t, err)

	require.NoError(t, dispatcher.HandleDeliver(context.Background(), deliver))
	require.Zero(t, hits)
}

func TestHandleDeliverEndpointGone(t *testing.T) {
	dispatcher, _, _ := newTestDispatcher(t)

	deliver, err := NewDeliverTask("missing", testEnvelope())
	require.NoError(t, err)

	err = dispatcher.HandleDeliver(context.Background(), deliver)
	require.Error(t, err)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}
