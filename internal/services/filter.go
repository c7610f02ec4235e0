package services

import (
	"strings"

	"connectsprobot/internal/models"
)

// Message kinds produced by the keyword filter.
const (
	KindOrder   = "order"
	KindSupport = "support"
	KindQuery   = "query"
	KindOther   = "other"
)

var filterKeywords = map[string][]string{
	KindOrder:   {"order", "buy", "purchase", "price", "cost", "payment"},
	KindSupport: {"help", "issue", "problem", "error", "broken", "fix"},
	KindQuery:   {"question", "ask", "how", "what", "when", "where", "why"},
}

// Categorize buckets a message body by keyword. Order wins over support
// wins over query; anything else is other.
func Categorize(body string) string {
	lower := strings.ToLower(body)
	for _, kind := range []string{KindOrder, KindSupport, KindQuery} {
		for _, kw := range filterKeywords[kind] {
			if strings.Contains(lower, kw) {
				return kind
			}
		}
	}
	return KindOther
}

// FilterMessages keeps only messages of the given kind; "all" passes everything.
func FilterMessages(messages []*models.Message, kind string) []*models.Message {
	if kind == "all" {
		return messages
	}
	var out []*models.Message
	for _, msg := range messages {
		if msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}
