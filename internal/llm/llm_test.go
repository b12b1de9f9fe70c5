package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDumbModelFromRegistry(t *testing.T) {
	m, err := New(KindDumb, map[string]any{"max_tokens": 4, "echo": true})
	require.NoError(t, err)

	out, err := m.Invoke(context.Background(), "one two three four five six")
	require.NoError(t, err)
	assert.Equal(t, 4, m.GetNumTokens(out))
}

func TestNewUnknownKindErrors(t *testing.T) {
	_, err := New(Kind("nonexistent"), nil)
	assert.Error(t, err)
}

func TestDumbModelEchoFalseAcknowledges(t *testing.T) {
	m, err := NewDumbModel(256, false)
	require.NoError(t, err)

	out, err := m.Invoke(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Contains(t, out, "acknowledged")
}

func TestDumbModelStreamDeliversWords(t *testing.T) {
	m, err := NewDumbModel(256, true)
	require.NoError(t, err)

	ch, err := m.Stream(context.Background(), "alpha beta gamma")
	require.NoError(t, err)

	var got []string
	for w := range ch {
		got = append(got, w)
	}
	assert.Len(t, got, 3)
}
