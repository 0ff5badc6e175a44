package engine

import (
	"context"
	"sync"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

// runParallel fans the same prompt out to every agent at once. Each call is
// isolated: one agent's failure never cancels the others. Results come back
// in input order regardless of completion order.
func (e *Engine) runParallel(ctx context.Context, agents []string, text string) []domain.ExecutionResult {
	results := make([]domain.ExecutionResult, len(agents))

	var wg sync.WaitGroup
	for i, name := range agents {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = e.runAgent(ctx, name, text)
		}(i, name)
	}
	wg.Wait()

	return results
}
