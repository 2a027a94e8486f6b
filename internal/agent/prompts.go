package agent

import (
	"fmt"
	"strings"

	"github.com/sheetmind/excel-analyst/internal/store"
)

// SystemInstruction is the standing instruction handed to the reasoning
// capability once per session; the per-step prompt carries the context
// block, catalogue and transcript.
const SystemInstruction = `You are an AI data analyst specialized in spreadsheet analysis.

Your approach:
1. Understand the user's question
2. Explore the dataset schema if needed (get_column_info, query_schema)
3. Execute analysis steps with the available actions
4. Synthesize results into a clear final answer

Guidelines:
- Always use exact column names from the dataset
- Be precise with numbers
- Handle null values appropriately
- If the data does not support the question, say so clearly`

const responseFormat = `RESPONSE FORMAT:
Reply with exactly one JSON object and nothing else. Either invoke an action:
  {"action": "<action name>", "args": {"<arg>": "<value>"}}
or give your final answer:
  {"final_answer": "<answer to the user's question>"}`

// buildContextBlock assembles the fixed-structure context prepended to
// every reasoning step: columns, a literal row sample, and the metadata
// retrieved for the question.
func buildContextBlock(columns []string, sampleRows, metadataContext string) string {
	return fmt.Sprintf(`Dataset Information:
-------------------
Columns: %s

Sample Data:
%s

Metadata Context (from retrieval):
%s`, strings.Join(columns, ", "), sampleRows, metadataContext)
}

// renderSampleRows formats a bounded literal sample for the prompt.
func renderSampleRows(sheet *store.Sheet, n int) string {
	if len(sheet.Rows) == 0 {
		return "(no rows)"
	}
	if n > len(sheet.Rows) {
		n = len(sheet.Rows)
	}
	var b strings.Builder
	b.WriteString(strings.Join(sheet.ColumnNames(), " | "))
	for _, row := range sheet.Rows[:n] {
		b.WriteByte('\n')
		parts := make([]string, len(row))
		for i, c := range row {
			parts[i] = c.String()
		}
		b.WriteString(strings.Join(parts, " | "))
	}
	return b.String()
}

// renderCatalog lists every action with its argument schema and an
// invocation example.
func renderCatalog() string {
	var b strings.Builder
	b.WriteString("AVAILABLE ACTIONS:\n")
	for _, spec := range Catalog {
		fmt.Fprintf(&b, "\n%s: %s\n", spec.Kind, spec.Description)
		for _, arg := range spec.Args {
			req := "optional"
			if arg.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "  - %s (%s): %s\n", arg.Name, req, arg.Description)
		}
		fmt.Fprintf(&b, "  Example: %s\n", spec.Example)
	}
	return b.String()
}

// buildStepPrompt produces the full prompt for one Think step.
func buildStepPrompt(question, contextBlock string, transcript []Step) string {
	var b strings.Builder
	b.WriteString(contextBlock)
	b.WriteString("\n\n")
	b.WriteString(renderCatalog())
	b.WriteString("\n")
	b.WriteString(responseFormat)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)

	if len(transcript) > 0 {
		b.WriteString("\n\nPrevious steps:")
		for _, step := range transcript {
			fmt.Fprintf(&b, "\n[Step %d] action: %s", step.Step, step.Action)
			if len(step.Args) > 0 {
				fmt.Fprintf(&b, " args: %v", step.Args)
			}
			fmt.Fprintf(&b, "\nObservation: %s", step.Observation)
		}
		b.WriteString("\n\nContinue. Reply with the next action, or a final_answer if you can answer the question now.")
	}
	return b.String()
}
