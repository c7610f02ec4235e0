package services

import (
	"testing"

	"connectsprobot/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"I want to order two units", KindOrder},
		{"What is the PRICE?", KindOrder},
		{"help, the app is broken", KindSupport},
		{"there is an issue with my account", KindSupport},
		{"when do you open?", KindQuery},
		{"just saying hi", KindOther},
		{"", KindOther},
		// Order outranks support and query when keywords overlap.
		{"help me buy this", KindOrder},
		{"how much does it cost", KindOrder},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.body), "body: %q", tt.body)
	}
}

func TestFilterMessages(t *testing.T) {
	msgs := []*models.Message{
		{Body: "buy one", Kind: KindOrder},
		{Body: "help", Kind: KindSupport},
		{Body: "hi", Kind: KindOther},
	}

	assert.Len(t, FilterMessages(msgs, "all"), 3)
	orders := FilterMessages(msgs, KindOrder)
	assert.Len(t, orders, 1)
	assert.Equal(t, "buy one", orders[0].Body)
	assert.Empty(t, FilterMessages(msgs, KindQuery))
}
