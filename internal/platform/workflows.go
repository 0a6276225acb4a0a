package platform

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// WorkflowOutcome is the terminal result of waiting on a workflow.
type WorkflowOutcome int

const (
	OutcomeSucceeded WorkflowOutcome = iota
	OutcomeFailed
	OutcomeTimedOut
)

func (o WorkflowOutcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// WorkflowResult is the outcome of a workflow wait plus the last observed
// workflow state.
type WorkflowResult struct {
	Outcome  WorkflowOutcome
	Workflow Workflow
}

// Err returns nil for a successful outcome and a descriptive error otherwise.
func (r WorkflowResult) Err() error {
	switch r.Outcome {
	case OutcomeSucceeded:
		return nil
	case OutcomeTimedOut:
		return fmt.Errorf("workflow %s timed out", r.Workflow.ID)
	default:
		if r.Workflow.Result != "" {
			return fmt.Errorf("workflow %s failed: %s", r.Workflow.ID, r.Workflow.Result)
		}
		return fmt.Errorf("workflow %s failed", r.Workflow.ID)
	}
}

// WaitForWorkflow polls a workflow until it reaches a terminal state, the
// configured workflow timeout elapses, or ctx is cancelled. The poll
// interval and timeout come from configuration; there is no indefinite
// blocking wait.
func (c *Client) WaitForWorkflow(ctx context.Context, siteID string, wf Workflow) (WorkflowResult, error) {
	if wf.Terminal() {
		return resultFor(wf), nil
	}

	deadline := time.Now().Add(c.workflowTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	slog.Debug("waiting for workflow",
		"workflow_id", wf.ID,
		"description", wf.Description)

	for {
		select {
		case <-ctx.Done():
			return WorkflowResult{}, ctx.Err()
		case <-ticker.C:
			current, err := c.GetWorkflow(ctx, siteID, wf.ID)
			if err != nil {
				return WorkflowResult{}, err
			}
			if current.Terminal() {
				return resultFor(current), nil
			}
			if time.Now().After(deadline) {
				return WorkflowResult{Outcome: OutcomeTimedOut, Workflow: current}, nil
			}
		}
	}
}

func resultFor(wf Workflow) WorkflowResult {
	if wf.Succeeded() {
		return WorkflowResult{Outcome: OutcomeSucceeded, Workflow: wf}
	}
	return WorkflowResult{Outcome: OutcomeFailed, Workflow: wf}
}
