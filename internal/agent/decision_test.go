package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecisionAction(t *testing.T) {
	d, err := ParseDecision(`{"action": "aggregate_data", "args": {"column": "sales", "operation": "sum"}}`)
	require.NoError(t, err)
	assert.False(t, d.IsFinal)
	assert.Equal(t, ActionAggregate, d.Action)
	assert.Equal(t, "sales", d.Args["column"])
	assert.Equal(t, "sum", d.Args["operation"])
}

func TestParseDecisionFinalAnswer(t *testing.T) {
	d, err := ParseDecision(`{"final_answer": "Total sales in the North region is 2700."}`)
	require.NoError(t, err)
	assert.True(t, d.IsFinal)
	assert.Equal(t, "Total sales in the North region is 2700.", d.FinalAnswer)
}

func TestParseDecisionMarkdownFences(t *testing.T) {
	raw := "Here is my next step:\n```json\n{\"action\": \"get_data_sample\", \"args\": {\"n\": 3}}\n```\n"
	d, err := ParseDecision(raw)
	require.NoError(t, err)
	assert.Equal(t, ActionSample, d.Action)
	// Numeric JSON args are converted to their string form.
	assert.Equal(t, "3", d.Args["n"])
}

func TestParseDecisionNestedBraceInString(t *testing.T) {
	d, err := ParseDecision(`{"action": "query_schema", "args": {"question": "what does {x} mean?"}}`)
	require.NoError(t, err)
	assert.Equal(t, "what does {x} mean?", d.Args["question"])
}

func TestParseDecisionMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"I think we should sample the data first.",
		`{"action": "get_data_sample"`,
		`{"args": {"n": 3}}`,
		`{"final_answer": "   "}`,
	} {
		_, err := ParseDecision(raw)
		assert.Error(t, err, "input %q should not parse", raw)
	}
}

func TestParseDecisionUnknownActionPassesThrough(t *testing.T) {
	// Unknown names are not a parse failure; the executor reports them
	// with the list of valid actions.
	d, err := ParseDecision(`{"action": "made_up_action", "args": {}}`)
	require.NoError(t, err)
	assert.Equal(t, ActionKind("made_up_action"), d.Action)
}
