package engine

import (
	"context"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

// runSequential runs the agents as a pipeline. The first agent gets the raw
// task; every later agent gets the task plus a rendered summary of all prior
// results. The pipeline stops at the first failure, returning the results
// completed so far with the failed one last. Later agents are never invoked.
func (e *Engine) runSequential(ctx context.Context, agents []string, text string) ([]domain.ExecutionResult, error) {
	results := make([]domain.ExecutionResult, 0, len(agents))

	for _, name := range agents {
		prompt := text
		if len(results) > 0 {
			prompt = e.augmentPrompt(text, results)
		}

		res := e.runAgent(ctx, name, prompt)
		results = append(results, res)
		if res.Status == domain.ResultRejected {
			break
		}

		// Persisting before the next invocation guarantees later agents,
		// and other workflows, can read every prior step's output.
		key := name + "_result"
		if err := e.store.Set(ctx, key, res, 0); err != nil {
			e.logger.Warn("result persist failed", "agent", name, "key", key, "error", err)
		}
	}

	return results, nil
}
