package engine

import (
	"fmt"
	"strings"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

const (
	resultsMarker   = "Previous results:"
	resultDelimiter = "\n---\n"
)

// renderResults flattens results into prompt-ready text: agent name plus
// output text, or an inline error marker for failures.
func renderResults(results []domain.ExecutionResult) string {
	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString(resultDelimiter)
		}
		if res.Status == domain.ResultFulfilled && res.Output != nil {
			fmt.Fprintf(&b, "[%s]\n%s", res.Agent, res.Output.Text)
		} else {
			fmt.Fprintf(&b, "[%s] ERROR: %s", res.Agent, res.Error)
		}
	}
	return b.String()
}

// augmentPrompt appends rendered prior results to the task text, capped to
// the engine's context budget.
func (e *Engine) augmentPrompt(task string, prior []domain.ExecutionResult) string {
	rendered := renderResults(prior)
	if e.capper != nil {
		rendered = e.capper.Truncate(rendered, e.config.ContextBudget)
	}
	return task + "\n\n" + resultsMarker + "\n" + rendered
}

func planningPrompt(task string, workers []string) string {
	return fmt.Sprintf(
		"You are coordinating a team working on this task:\n%s\n\nAvailable workers: %s\n\nDecompose the task and describe what each worker should do.",
		task, strings.Join(workers, ", "))
}

func workerPrompt(task string) string {
	return fmt.Sprintf("Complete your portion of this team task:\n%s", task)
}

func aggregationPrompt(task, renderedWorkerResults string) string {
	return fmt.Sprintf(
		"The team has finished working on this task:\n%s\n\n%s\n%s\n\nConsolidate the results into a final answer.",
		task, resultsMarker, renderedWorkerResults)
}
