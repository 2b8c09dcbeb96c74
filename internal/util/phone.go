package util

import (
	"regexp"
	"strings"
)

var phoneJunk = regexp.MustCompile(`[^\d+]+`)

// NormalizePhone strips spaces and punctuation from a dialled number and
// rewrites the 00 international prefix as +. Local numbers are left as typed;
// the router resolves them against its own network.
func NormalizePhone(raw string) string {
	s := phoneJunk.ReplaceAllString(strings.TrimSpace(raw), "")

	// only a leading + is meaningful
	if i := strings.LastIndex(s, "+"); i > 0 {
		lead := strings.HasPrefix(s, "+")
		s = strings.ReplaceAll(s, "+", "")
		if lead {
			s = "+" + s
		}
	}

	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if s == "+" {
		return ""
	}
	return s
}
