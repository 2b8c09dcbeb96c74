package model

import "strings"

// SMS is a single outbound text as accepted from callers (HTTP body, Kafka envelope).
type SMS struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

// Normalize trims surrounding whitespace from the phone number. The message
// body is left exactly as given.
func (s SMS) Normalize() SMS {
	s.PhoneNumber = strings.TrimSpace(s.PhoneNumber)
	return s
}

// Valid requires a phone number and a message that is not blank.
func (s SMS) Valid() bool {
	return s.PhoneNumber != "" && strings.TrimSpace(s.Message) != ""
}
