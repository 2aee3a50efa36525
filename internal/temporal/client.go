package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
)

// workflowStarter is the subset of client.Client the dispatch layer needs to
// kick off workflow executions, narrowed for testability.
type workflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// IngestSubmitter starts IngestWorkflow executions on behalf of the
// docs/ingest HTTP handler (spec §4.K).
type IngestSubmitter struct {
	Client workflowStarter
}

// SubmitIngestWorkflow starts one IngestWorkflow execution, using the job ID
// as the workflow ID so a retried submission with the same job ID attaches
// to the already-running execution instead of starting a duplicate.
func (s *IngestSubmitter) SubmitIngestWorkflow(ctx context.Context, in IngestWorkflowInput) error {
	wo := client.StartWorkflowOptions{
		ID:        "ingest-" + in.JobID,
		TaskQueue: TaskQueue,
	}
	if _, err := s.Client.ExecuteWorkflow(ctx, wo, IngestWorkflow, in); err != nil {
		return fmt.Errorf("temporal: start ingest workflow %s: %w", in.JobID, err)
	}
	return nil
}
