package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectInvoke       = "marketplace.invoke"
	SubjectPaymentEvent = "marketplace.payments"
)

// unhandledToken is the subject suffix for webhook events no effect exists for.
const unhandledToken = "unhandled"

var subjectReplacer = strings.NewReplacer("*", "_", ">", "_", " ", "_", "\t", "_")

// BuildPaymentSubject builds the subject a payment event of eventType is published on.
// Wildcard characters in eventType are replaced so the result is always a literal subject.
func BuildPaymentSubject(prefix, eventType string) string {
	if prefix == "" {
		prefix = SubjectPaymentEvent
	}
	safe := subjectReplacer.Replace(strings.Trim(eventType, "."))
	if safe == "" {
		safe = "unknown"
	}
	return fmt.Sprintf("%s.%s", prefix, safe)
}

// BuildUnhandledSubject builds the subject unrecognized payment events are recorded on.
func BuildUnhandledSubject(prefix string) string {
	if prefix == "" {
		prefix = SubjectPaymentEvent
	}
	return prefix + "." + unhandledToken
}

// ValidSubject reports whether s can be subscribed to as a literal subject.
func ValidSubject(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n*>") {
		return false
	}
	for _, tok := range strings.Split(s, ".") {
		if tok == "" {
			return false
		}
	}
	return true
}
