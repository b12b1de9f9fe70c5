package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roleSet() map[string]bool {
	return map[string]bool{"user": true, "ai": true}
}

func TestStringifyAndTuplizeHistoryRoundTrip(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "what is a2rchi?"},
		{Role: "ai", Content: "a retrieval-augmented QA platform."},
	}

	text, err := StringifyHistory(history, roleSet())
	require.NoError(t, err)
	assert.Equal(t, "user: what is a2rchi?\nai: a retrieval-augmented QA platform.\n", text)

	back, err := TuplizeHistory(text, roleSet())
	require.NoError(t, err)
	assert.Equal(t, history, back)
}

func TestStringifyHistoryRejectsUnknownRole(t *testing.T) {
	_, err := StringifyHistory([]Message{{Role: "bot", Content: "hi"}}, roleSet())
	assert.Error(t, err)
}

func TestTuplizeHistoryEmptyInput(t *testing.T) {
	out, err := TuplizeHistory("", roleSet())
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestTuplizeHistoryRejectsMalformedLine(t *testing.T) {
	_, err := TuplizeHistory("not a role line", roleSet())
	assert.Error(t, err)
}
