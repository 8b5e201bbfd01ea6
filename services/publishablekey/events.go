package publishablekey

// Lifecycle event names published through the outbox.
const (
	EventCreated = "publishable_api_key.created"
	EventRevoked = "publishable_api_key.revoked"
)

// EventPayload is the payload of both lifecycle events. Consumers that
// need more than the id fetch the record.
type EventPayload struct {
	ID string `json:"id"`
}
