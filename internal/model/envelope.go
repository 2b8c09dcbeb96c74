package model

// Envelope is one Kafka intake record: the SMS plus an optional producer-side id
// carried through to logs.
type Envelope struct {
	ID string `json:"id,omitempty"`
	SMS
}
