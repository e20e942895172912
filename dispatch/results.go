package dispatch

import (
	"github.com/oneprompt/agentd/errors"
)

// aggregateResults assembles resumption input for a job that suspended on
// waitingOn. The slice is ordered exactly as the runner declared the
// dependencies, regardless of completion order. Every dependency must be
// terminal by the time this is called.
func aggregateResults(store *Store, waitingOn []string) ([]DependencyResult, error) {
	if len(waitingOn) == 0 {
		return nil, nil
	}

	results := make([]DependencyResult, 0, len(waitingOn))
	for _, depID := range waitingOn {
		dep, err := store.GetJob(depID)
		if err != nil {
			return nil, errors.Wrapf(err, "aggregating result of dependency %s", depID)
		}

		if !dep.Status.IsTerminal() {
			return nil, errors.AssertionFailedf(
				"dependency %s is %s, expected terminal state", dep.ID, dep.Status)
		}

		results = append(results, DependencyResult{
			JobID:  dep.ID,
			Kind:   dep.Kind,
			Result: dep.Result,
			Failed: dep.Status == JobStatusFailed,
			Error:  dep.Error,
		})
	}

	return results, nil
}
