package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInfersInputVariables(t *testing.T) {
	tmpl, err := New("qa", "Answer {question} using {retriever_output}.", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"question", "retriever_output"}, tmpl.InputVariables)
	assert.Contains(t, tmpl.Template, "<question> {question} </question>")
	assert.Contains(t, tmpl.Template, "<retriever_output> {retriever_output} </retriever_output>")
}

func TestNewRejectsUnsupportedVariable(t *testing.T) {
	_, err := New("bad", "Answer {bogus}.", []string{"bogus"})
	assert.Error(t, err)
}

func TestNewRejectsMissingVariableInTemplate(t *testing.T) {
	_, err := New("bad", "Answer the question.", []string{"question"})
	assert.Error(t, err)
}

func TestFormatSubstitutesValues(t *testing.T) {
	tmpl, err := New("qa", "Q: {question}", nil)
	require.NoError(t, err)

	out, err := tmpl.Format(map[string]string{"question": "what is a2rchi?"})
	require.NoError(t, err)
	assert.Contains(t, out, "what is a2rchi?")
}

func TestFormatRejectsMissingValue(t *testing.T) {
	tmpl, err := New("qa", "Q: {question}", nil)
	require.NoError(t, err)

	_, err = tmpl.Format(map[string]string{})
	assert.Error(t, err)
}
