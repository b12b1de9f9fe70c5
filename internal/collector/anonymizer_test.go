package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymizerRemovesEmailsAndGreetings(t *testing.T) {
	a, err := NewAnonymizer(
		`[\w.+-]+@[\w-]+\.[\w.-]+`,
		`@[\w.-]+`,
		[]string{`^hi\b.*`, `^dear\b.*`},
		[]string{`^regards.*`, `^best.*`},
	)
	require.NoError(t, err)

	text := "Hi there,\nPlease contact me at jane@example.com or @janedoe for details.\nBest,\nJane"
	out := a.Anonymize(text)

	assert.NotContains(t, out, "jane@example.com")
	assert.NotContains(t, out, "@janedoe")
	assert.NotContains(t, out, "Hi there")
	assert.NotContains(t, out, "Best,")
}
