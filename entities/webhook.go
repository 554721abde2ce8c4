package entities

// WebhookEvent identifies a payment provider notification for deduplication.
type WebhookEvent struct {
	ID   string `db:"event_id"`
	Type string `db:"event_type"`
}
