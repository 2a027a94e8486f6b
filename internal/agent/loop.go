// Package agent drives the reason-act-observe loop over one query,
// alternating between the retrieved schema context and the tabular
// actions until the reasoning capability produces a final answer or
// the step budget runs out.
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/sheetmind/excel-analyst/internal/index"
	"github.com/sheetmind/excel-analyst/internal/store"
)

const (
	// DefaultMaxSteps bounds the think/act/observe cycles per query.
	DefaultMaxSteps = 10
	// DefaultTopK is how many metadata fragments context assembly pulls.
	DefaultTopK = 5

	contextSampleRows = 3
	maxObservationLen = 500
)

// Reasoner is the external reasoning capability: given one prompt it
// returns free-form text that ParseDecision interprets.
type Reasoner interface {
	Decide(ctx context.Context, prompt string) (string, error)
}

// Step is one entry of the query transcript.
type Step struct {
	Step        int               `json:"step"`
	Action      string            `json:"action"`
	Args        map[string]string `json:"args,omitempty"`
	Observation string            `json:"observation"`
}

// Result is the caller-facing outcome of one query: plain data, no
// framework types.
type Result struct {
	Query           string `json:"query"`
	Answer          string `json:"answer"`
	Steps           []Step `json:"execution_steps"`
	ContextUsed     string `json:"rag_context_used,omitempty"`
	Success         bool   `json:"success"`
	BudgetExhausted bool   `json:"budget_exhausted,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Runner executes queries against one store/index pair. Each Run gets
// its own transcript; Runners are safe for concurrent queries.
type Runner struct {
	store    *store.TabularStore
	index    *index.Manager
	reasoner Reasoner
	maxSteps int
	topK     int
}

func NewRunner(ts *store.TabularStore, im *index.Manager, reasoner Reasoner, maxSteps, topK int) *Runner {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Runner{store: ts, index: im, reasoner: reasoner, maxSteps: maxSteps, topK: topK}
}

// Run answers one question about a dataset/sheet. A store-level
// NotFound comes back as a Go error so the HTTP layer can map it;
// everything after the loop starts is reported through the Result.
func (r *Runner) Run(ctx context.Context, datasetID, sheetName, question string) (Result, error) {
	sheet, err := r.store.Get(datasetID, sheetName)
	if err != nil {
		return Result{}, err
	}

	log.Printf("Processing query for dataset %s, sheet %s: %q", datasetID, sheet.Name, question)

	// Context assembly, once per query.
	ragContext, err := r.retrieveContext(ctx, datasetID, question)
	if err != nil {
		// An erroring embedding capability is a real failure, not an
		// empty retrieval; it must not be masked as "no metadata".
		return failure(question, fmt.Sprintf("failed to retrieve metadata context: %v", err)), nil
	}
	contextBlock := buildContextBlock(sheet.ColumnNames(), renderSampleRows(sheet, contextSampleRows), ragContext)

	executor := NewExecutor(sheet, datasetID, r.index)

	var transcript []Step
	for stepNum := 1; stepNum <= r.maxSteps; stepNum++ {
		// Cooperative cancellation between steps.
		if err := ctx.Err(); err != nil {
			res := failure(question, fmt.Sprintf("query cancelled: %v", err))
			res.Steps = truncateSteps(transcript)
			res.ContextUsed = truncate(ragContext, maxObservationLen)
			return res, nil
		}

		prompt := buildStepPrompt(question, contextBlock, transcript)
		raw, err := r.reasoner.Decide(ctx, prompt)
		if err != nil {
			res := failure(question, fmt.Sprintf("reasoning capability failed: %v", err))
			res.Steps = truncateSteps(transcript)
			res.ContextUsed = truncate(ragContext, maxObservationLen)
			return res, nil
		}

		decision, perr := ParseDecision(raw)
		if perr != nil {
			// Recoverable: the malformed response consumes a step and
			// the retry instruction rides back as an observation.
			log.Printf("Step %d: unparseable reasoning response: %v", stepNum, perr)
			transcript = append(transcript, Step{
				Step:        stepNum,
				Action:      "malformed_response",
				Observation: fmt.Sprintf("Could not parse your response (%v). Reply with a single JSON object in the required format.", perr),
			})
			continue
		}

		if decision.IsFinal {
			log.Printf("Query completed in %d steps", stepNum-1)
			return Result{
				Query:       question,
				Answer:      decision.FinalAnswer,
				Steps:       truncateSteps(transcript),
				ContextUsed: truncate(ragContext, maxObservationLen),
				Success:     true,
			}, nil
		}

		observation := executor.Execute(ctx, decision.Action, decision.Args)
		transcript = append(transcript, Step{
			Step:        stepNum,
			Action:      string(decision.Action),
			Args:        decision.Args,
			Observation: observation,
		})
	}

	// Budget exhausted: a defined terminal state, not an error.
	log.Printf("Query hit the step budget of %d without a final answer", r.maxSteps)
	answer := fmt.Sprintf("Budget exhausted: reached the maximum of %d analysis steps without a final answer.", r.maxSteps)
	if len(transcript) > 0 {
		answer += " Most recent observation: " + truncate(transcript[len(transcript)-1].Observation, maxObservationLen)
	}
	return Result{
		Query:           question,
		Answer:          answer,
		Steps:           truncateSteps(transcript),
		ContextUsed:     truncate(ragContext, maxObservationLen),
		Success:         true,
		BudgetExhausted: true,
	}, nil
}

// retrieveContext pulls the top-k fragments for the raw question. An
// empty retrieval is fine; an erroring one is not.
func (r *Runner) retrieveContext(ctx context.Context, datasetID, question string) (string, error) {
	fragments, err := r.index.Query(ctx, datasetID, question, r.topK, nil)
	if err != nil {
		return "", err
	}
	if len(fragments) == 0 {
		return "No relevant metadata found.", nil
	}
	parts := make([]string, len(fragments))
	for i, f := range fragments {
		parts[i] = fmt.Sprintf("[Context %d]\n%s", i+1, f.Text)
	}
	return strings.Join(parts, "\n\n"), nil
}

func failure(question, msg string) Result {
	return Result{Query: question, Answer: msg, Success: false, Error: msg}
}

func truncateSteps(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, s := range steps {
		s.Observation = truncate(s.Observation, maxObservationLen)
		out[i] = s
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
