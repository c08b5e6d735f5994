// Package scope classifies a user utterance as in-domain, out-of-domain, or
// ambiguous before it reaches the LLM, guarding against wasted model calls
// on clearly off-topic or malicious input.
package scope

import (
	"regexp"
	"strings"
)

// Verdict is in-scope, out-of-scope, or ambiguous.
type Verdict int

const (
	Invalid Verdict = iota
	Valid
)

// Classification is the result of classifying an utterance.
type Classification struct {
	Verdict    Verdict
	Confidence float64
	Reason     string
}

var maliciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(DROP|TRUNCATE|ALTER)\s+TABLE\b`),
	regexp.MustCompile(`(?i)\b(rm\s+-rf|sudo|chmod\s+777|wget|curl\s+http)\b`),
	regexp.MustCompile(`(?i)\b(hack|exploit|jailbreak|bypass\s+(auth|security))\b`),
	regexp.MustCompile(`(?i)\b(dump|steal|exfiltrate)\s+(password|credential|secret|token)s?\b`),
	regexp.MustCompile(`(?i)/etc/passwd|/proc/self|\.\./\.\./`),
	regexp.MustCompile(`(?i)\bignore\s+(previous|all)\s+instructions\b`),
}

var greetingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(hi|hello|hey|howdy|yo)\b`),
	regexp.MustCompile(`(?i)^\s*(thanks|thank you|ty|cheers|ok|okay|got it|sounds good)\s*[.!]?\s*$`),
	regexp.MustCompile(`(?i)^\s*(help|what can you do)\b`),
	regexp.MustCompile(`(?i)^\s*(bye|goodbye|see ya)\b`),
}

var travelKeywords = regexp.MustCompile(`(?i)\b(flight|flights|hotel|hotels|trip|trips|price|prices|alert|alerts|itinerary|` +
	`book|booking|fare|fares|airline|airport|city|cities|destination|refresh|pause|resume|track|tracking|` +
	`departure|arrival|checkin|check-in|checkout|check-out|layover|vacation|stay)\b`)

var iataCode = regexp.MustCompile(`\b[A-Z]{3}\b`)

// Classify implements the six ordered rules.
func Classify(utterance string) Classification {
	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" {
		return Classification{Verdict: Invalid, Confidence: 1.0, Reason: "empty"}
	}

	for _, p := range maliciousPatterns {
		if p.MatchString(trimmed) {
			return Classification{Verdict: Invalid, Confidence: 0.95, Reason: "malicious_pattern"}
		}
	}

	for _, p := range greetingPatterns {
		if p.MatchString(trimmed) {
			return Classification{Verdict: Valid, Confidence: 1.0, Reason: "greeting"}
		}
	}

	if k := keywordMatches(trimmed); k > 0 {
		conf := 0.7 + 0.1*float64(k)
		if conf > 1.0 {
			conf = 1.0
		}
		return Classification{Verdict: Valid, Confidence: conf, Reason: "travel_keyword"}
	}

	if len(strings.Fields(trimmed)) <= 5 {
		return Classification{Verdict: Valid, Confidence: 0.5, Reason: "short_ambiguous"}
	}

	return Classification{Verdict: Valid, Confidence: 0.3, Reason: "unclassified"}
}

func keywordMatches(s string) int {
	n := len(travelKeywords.FindAllString(s, -1))
	n += len(iataCode.FindAllString(s, -1))
	return n
}
