package eventing

import "time"

// DeadLetter is an envelope whose delivery failed.
type DeadLetter struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Error       string    `json:"error"`
	Attempts    int       `json:"attempts"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	Envelope    Envelope  `json:"envelope"`
}

// OutboxStats counts outbox records by delivery state. Exhausted records are
// failed ones past the attempt cap that the dispatcher no longer picks up.
type OutboxStats struct {
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	Exhausted int `json:"exhausted"`
	Sent      int `json:"sent"`
}
