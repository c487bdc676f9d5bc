package outbox

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Message is a row written to an outbox table inside a business transaction.
type Message struct {
	AggregateID uuid.UUID
	Topic       string
	EventID     uuid.UUID
	Payload     json.RawMessage
}

// Meta carries the delivery metadata handed to a Dispatcher. EventID is stable
// across retries and is what consumers deduplicate on.
type Meta struct {
	Table       pgx.Identifier
	AggregateID uuid.UUID
	Topic       string
	EventID     uuid.UUID
	Sequence    int64
	Attempts    int
}

type DispatchedMessage struct {
	Meta    Meta
	Payload json.RawMessage
}
