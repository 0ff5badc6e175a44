package engine

import (
	"context"
	"time"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

// runHierarchical splits the agents into a coordinator (first) and workers
// (rest). The coordinator plans, the workers run in parallel, and the
// coordinator aggregates. The run collapses to a single result attributed
// to the coordinator: its cost and tokens sum every call in the run, and
// its duration spans from before planning to after aggregation. A failing
// worker is not surfaced separately; its error text flows into the
// aggregation prompt.
func (e *Engine) runHierarchical(ctx context.Context, agents []string, text string) ([]domain.ExecutionResult, error) {
	coordinator := agents[0]
	workers := agents[1:]
	start := time.Now()

	plan := e.runAgent(ctx, coordinator, planningPrompt(text, workers))
	if plan.Status == domain.ResultRejected {
		return nil, domain.NewDomainError("Engine.runHierarchical", domain.ErrTaskFailed,
			"coordinator planning failed: "+plan.Error)
	}

	workerResults := e.runParallel(ctx, workers, workerPrompt(text))

	rendered := renderResults(workerResults)
	if e.capper != nil {
		rendered = e.capper.Truncate(rendered, e.config.ContextBudget)
	}
	agg := e.runAgent(ctx, coordinator, aggregationPrompt(text, rendered))
	if agg.Status == domain.ResultRejected {
		return nil, domain.NewDomainError("Engine.runHierarchical", domain.ErrTaskFailed,
			"coordinator aggregation failed: "+agg.Error)
	}

	total := domain.ExecutionResult{
		Agent:    coordinator,
		Status:   domain.ResultFulfilled,
		Output:   agg.Output,
		Duration: time.Since(start),
		Cost:     plan.Cost + agg.Cost,
		Tokens:   plan.Tokens,
	}
	total.Tokens.Add(agg.Tokens)
	for _, wr := range workerResults {
		total.Cost += wr.Cost
		total.Tokens.Add(wr.Tokens)
	}

	return []domain.ExecutionResult{total}, nil
}
