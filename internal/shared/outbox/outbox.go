package outbox

// Status values of an outbox row. A row is written pending inside the same
// transaction as the state change and flipped to published by the relay.
const (
	StatusPending   = "pending"
	StatusPublished = "published"
)
